package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

type fixture struct {
	db       *database.Database
	svc      *Service
	agency   *models.Agency
	agent    *models.Member
	property *models.Property
	lead     *models.Lead
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	agency := &models.Agency{Name: "Casa", DefaultCommissionRate: 2.5}
	require.NoError(t, db.CreateAgency(ctx, agency))

	user := &models.User{Email: "agent@casa.test", PasswordHash: "x", Name: "Rita", Role: models.RoleAgent, AgencyID: &agency.ID}
	require.NoError(t, db.CreateUser(ctx, user))
	agent := &models.Member{UserID: user.ID, AgencyID: agency.ID, CommissionRate: 3, Active: true}
	require.NoError(t, db.CreateMember(ctx, agent))

	property := &models.Property{
		Title: "T2 Alfama", Type: models.PropertyTypeApartment, ListingType: models.ListingTypeSale,
		Status: models.PropertyStatusActive, Price: 300000, AgencyID: &agency.ID,
	}
	require.NoError(t, db.CreateProperty(ctx, property))

	lead := &models.Lead{Name: "Joao", Source: models.LeadSourceWebsite, Status: models.LeadStatusNew, AgencyID: &agency.ID, PropertyID: &property.ID}
	require.NoError(t, db.CreateLead(ctx, lead))

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return &fixture{db: db, svc: NewService(db, logger), agency: agency, agent: agent, property: property, lead: lead}
}

func stagePtr(s models.Stage) *models.Stage { return &s }
func intPtr(v int) *int                     { return &v }
func floatPtr(v float64) *float64           { return &v }

func TestCreate_AppendsAndDefaultsRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "A", Value: 1000})
	require.NoError(t, err)
	assert.Equal(t, models.StageNew, first.Stage)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 2.5, first.CommissionRate)
	assert.Equal(t, 25.0, first.CommissionAmount)

	second, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "B", Value: 250000, AgentID: &f.agent.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, 3.0, second.CommissionRate)
	assert.Equal(t, 7500.0, second.CommissionAmount)

	_, err = f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "C", Value: 1, Stage: "DONE"})
	assert.True(t, errors.Is(err, apperr.ErrBadRequest))

	_, err = f.svc.Create(ctx, f.agency.ID, CreateInput{Title: " ", Value: 1})
	assert.True(t, errors.Is(err, apperr.ErrBadRequest))

	missing := uint(999)
	_, err = f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "D", Value: 1, AgentID: &missing})
	assert.True(t, errors.Is(err, apperr.ErrBadRequest))
}

func TestUpdate_MoveReordersBothStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []uint
	for _, title := range []string{"A", "B", "C"} {
		d, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: title, Value: 100})
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}
	offer, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "O", Value: 100, Stage: models.StageOffer})
	require.NoError(t, err)

	moved, err := f.svc.Update(ctx, f.agency.ID, ids[1], Patch{Stage: stagePtr(models.StageOffer), Position: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, models.StageOffer, moved.Stage)
	assert.Equal(t, 0, moved.Position)

	newIDs, err := f.db.DealIDsInStage(ctx, f.agency.ID, models.StageNew)
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[0], ids[2]}, newIDs)

	offerIDs, err := f.db.DealIDsInStage(ctx, f.agency.ID, models.StageOffer)
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[1], offer.ID}, offerIDs)

	c, err := f.svc.Get(ctx, f.agency.ID, ids[2])
	require.NoError(t, err)
	assert.Equal(t, 1, c.Position)

	// Reorder inside a column
	_, err = f.svc.Update(ctx, f.agency.ID, offer.ID, Patch{Position: intPtr(0)})
	require.NoError(t, err)
	offerIDs, err = f.db.DealIDsInStage(ctx, f.agency.ID, models.StageOffer)
	require.NoError(t, err)
	assert.Equal(t, []uint{offer.ID, ids[1]}, offerIDs)
}

func TestUpdate_RecomputesCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "A", Value: 1000, CommissionRate: floatPtr(2)})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, f.agency.ID, deal.ID, Patch{Value: floatPtr(2000)})
	require.NoError(t, err)
	assert.Equal(t, 40.0, updated.CommissionAmount)

	updated, err = f.svc.Update(ctx, f.agency.ID, deal.ID, Patch{CommissionRate: floatPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.CommissionAmount)
}

func TestUpdate_ClosedWonAndReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal, err := f.svc.Create(ctx, f.agency.ID, CreateInput{
		Title: "Alfama", Value: 300000, LeadID: &f.lead.ID, PropertyID: &f.property.ID, AgentID: &f.agent.ID,
	})
	require.NoError(t, err)

	won, err := f.svc.Update(ctx, f.agency.ID, deal.ID, Patch{Stage: stagePtr(models.StageClosedWon)})
	require.NoError(t, err)
	assert.NotNil(t, won.ClosedAt)

	commission, err := f.db.GetCommissionByDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionPending, commission.Status)
	assert.Equal(t, 9000.0, commission.Amount)
	require.NotNil(t, commission.MemberID)
	assert.Equal(t, f.agent.ID, *commission.MemberID)

	lead, err := f.db.GetLead(ctx, database.AgencyTenant(f.agency.ID), f.lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusConverted, lead.Status)

	property, err := f.db.GetProperty(ctx, f.property.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PropertyStatusSold, property.Status)

	reopened, err := f.svc.Update(ctx, f.agency.ID, deal.ID, Patch{Stage: stagePtr(models.StageNegotiation)})
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)
	_, err = f.db.GetCommissionByDeal(ctx, deal.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUpdate_ClosedLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "A", Value: 10, LeadID: &f.lead.ID})
	require.NoError(t, err)

	lost, err := f.svc.Update(ctx, f.agency.ID, deal.ID, Patch{Stage: stagePtr(models.StageClosedLost)})
	require.NoError(t, err)
	assert.NotNil(t, lost.ClosedAt)

	lead, err := f.db.GetLead(ctx, database.AgencyTenant(f.agency.ID), f.lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusLost, lead.Status)
}

func TestUpdate_OtherAgencyIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "A", Value: 10})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.agency.ID+1, deal.ID, Patch{Stage: stagePtr(models.StageOffer)})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = f.svc.Delete(ctx, f.agency.ID+1, deal.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestBoard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "A", Value: 1000})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "B", Value: 2000, Stage: models.StageOffer})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "C", Value: 5000, Stage: models.StageClosedWon})
	require.NoError(t, err)

	board, err := f.svc.Board(ctx, f.agency.ID, models.DealFilter{})
	require.NoError(t, err)
	require.Len(t, board.Columns, len(models.Stages))
	for i, col := range board.Columns {
		assert.Equal(t, models.Stages[i], col.Stage)
		assert.NotNil(t, col.Deals)
	}

	assert.Equal(t, 1, board.Columns[0].Count)
	assert.Equal(t, 50.0, board.Columns[0].WeightedValue)
	assert.Equal(t, 1000.0, board.Columns[4].WeightedValue)
	assert.Equal(t, 3000.0, board.TotalValue)
	assert.Equal(t, 1050.0, board.WeightedValue)
	assert.Equal(t, 0, board.Columns[2].Count)
}

func TestDelete_CompactsStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "A", Value: 1})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "B", Value: 1})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.agency.ID, a.ID))

	got, err := f.svc.Get(ctx, f.agency.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Position)
}

func TestConvertLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal, err := f.svc.ConvertLead(ctx, f.agency.ID, f.lead.ID, ConvertInput{})
	require.NoError(t, err)
	assert.Equal(t, models.StageQualified, deal.Stage)
	assert.Equal(t, 300000.0, deal.Value)
	assert.Equal(t, "Deal: Joao", deal.Title)

	lead, err := f.db.GetLead(ctx, database.AgencyTenant(f.agency.ID), f.lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusQualified, lead.Status)

	budget := 250000.0
	withBudget := &models.Lead{Name: "Ana", Source: models.LeadSourceReferral, Status: models.LeadStatusContacted, AgencyID: &f.agency.ID, Budget: &budget}
	require.NoError(t, f.db.CreateLead(ctx, withBudget))
	deal, err = f.svc.ConvertLead(ctx, f.agency.ID, withBudget.ID, ConvertInput{Title: "Ana's flat"})
	require.NoError(t, err)
	assert.Equal(t, 250000.0, deal.Value)
	assert.Equal(t, "Ana's flat", deal.Title)

	_, err = f.svc.ConvertLead(ctx, f.agency.ID+1, f.lead.ID, ConvertInput{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConvertLead_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal, err := f.svc.ConvertLead(ctx, f.agency.ID, f.lead.ID, ConvertInput{})
	require.NoError(t, err)

	_, err = f.svc.ConvertLead(ctx, f.agency.ID, f.lead.ID, ConvertInput{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	deals, err := f.db.ListDeals(ctx, f.agency.ID, models.DealFilter{})
	require.NoError(t, err)
	assert.Len(t, deals, 1)

	// losing the deal marks the lead lost, which still blocks conversion
	lost := models.StageClosedLost
	_, err = f.svc.Update(ctx, f.agency.ID, deal.ID, Patch{Stage: &lost})
	require.NoError(t, err)
	_, err = f.svc.ConvertLead(ctx, f.agency.ID, f.lead.ID, ConvertInput{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	gone := &models.Lead{Name: "Rui", Source: models.LeadSourceWebsite, Status: models.LeadStatusLost, AgencyID: &f.agency.ID}
	require.NoError(t, f.db.CreateLead(ctx, gone))
	_, err = f.svc.ConvertLead(ctx, f.agency.ID, gone.ID, ConvertInput{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestPayCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal, err := f.svc.Create(ctx, f.agency.ID, CreateInput{Title: "A", Value: 1000, AgentID: &f.agent.ID, Stage: models.StageClosedWon})
	require.NoError(t, err)
	commission, err := f.db.GetCommissionByDeal(ctx, deal.ID)
	require.NoError(t, err)

	pending, err := f.svc.ListCommissions(ctx, f.agency.ID, models.CommissionPending, nil)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	paid, err := f.svc.PayCommission(ctx, f.agency.ID, commission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	_, err = f.svc.PayCommission(ctx, f.agency.ID, commission.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = f.svc.ListCommissions(ctx, f.agency.ID, "OWED", nil)
	assert.True(t, errors.Is(err, apperr.ErrBadRequest))
}
