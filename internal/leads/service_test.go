package leads

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyNewLead(ctx context.Context, lead *models.Lead, property *models.Property, agency *models.Agency) error {
	args := m.Called(ctx, lead, property, agency)
	return args.Error(0)
}

type fixture struct {
	db       *database.Database
	svc      *Service
	notifier *MockNotifier
	agency   *models.Agency
	member   *models.Member
	listing  *models.Property
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	agency := &models.Agency{Name: "Casa", TelegramChatID: "-100"}
	require.NoError(t, db.CreateAgency(ctx, agency))
	user := &models.User{Email: "rita@casa.test", PasswordHash: "x", Role: models.RoleAgent, AgencyID: &agency.ID}
	require.NoError(t, db.CreateUser(ctx, user))
	member := &models.Member{UserID: user.ID, AgencyID: agency.ID, Active: true}
	require.NoError(t, db.CreateMember(ctx, member))

	listing := &models.Property{Title: "T3 Estrela", Type: models.PropertyTypeApartment, ListingType: models.ListingTypeSale,
		Status: models.PropertyStatusActive, Price: 450000, AgencyID: &agency.ID, AgentID: &member.ID}
	require.NoError(t, db.CreateProperty(ctx, listing))

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	notifier := &MockNotifier{}
	return &fixture{db: db, svc: NewService(db, notifier, logger), notifier: notifier, agency: agency, member: member, listing: listing}
}

func TestInquire_CreatesWebsiteLeadAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("NotifyNewLead", mock.Anything, mock.AnythingOfType("*models.Lead"), mock.AnythingOfType("*models.Property"),
		mock.MatchedBy(func(a *models.Agency) bool { return a != nil && a.TelegramChatID == "-100" })).Return(nil)

	lead, err := f.svc.Inquire(context.Background(), f.listing.ID, Inquiry{Name: "Ana", Email: "ana@example.com", Message: " Is it still available? "})
	require.NoError(t, err)

	assert.Equal(t, models.LeadSourceWebsite, lead.Source)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.Equal(t, f.agency.ID, *lead.AgencyID)
	assert.Equal(t, f.member.ID, *lead.AssigneeID)
	assert.Equal(t, "Is it still available?", lead.Notes)
	f.notifier.AssertExpectations(t)
}

func TestInquire_NotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("NotifyNewLead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("telegram down"))

	_, err := f.svc.Inquire(context.Background(), f.listing.ID, Inquiry{Name: "Ana", Phone: "+351 900 000 000"})
	require.NoError(t, err)

	page, err := f.svc.List(context.Background(), database.AgencyTenant(f.agency.ID), models.LeadFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestInquire_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Inquire(ctx, 9999, Inquiry{Name: "Ana", Email: "ana@example.com"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Inquire(ctx, f.listing.ID, Inquiry{Name: "Ana"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = f.svc.Inquire(ctx, f.listing.ID, Inquiry{Name: "Ana", Email: "not-an-email"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	require.NoError(t, f.db.SetPropertyStatus(ctx, f.listing.ID, models.PropertyStatusSold))
	_, err = f.svc.Inquire(ctx, f.listing.ID, Inquiry{Name: "Ana", Email: "ana@example.com"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	f.notifier.AssertNotCalled(t, "NotifyNewLead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("NotifyNewLead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()
	tenant := database.AgencyTenant(f.agency.ID)
	otherTenant := database.AgencyTenant(f.agency.ID + 100)
	missing := uint(9999)
	negative := -1.0

	tests := []struct {
		name   string
		tenant database.Tenant
		in     CreateInput
		want   error
	}{
		{"no name", tenant, CreateInput{Email: "a@b.co"}, apperr.ErrBadRequest},
		{"no contact", tenant, CreateInput{Name: "Ana"}, apperr.ErrBadRequest},
		{"bad source", tenant, CreateInput{Name: "Ana", Email: "a@b.co", Source: "FAX"}, apperr.ErrBadRequest},
		{"negative budget", tenant, CreateInput{Name: "Ana", Email: "a@b.co", Budget: &negative}, apperr.ErrBadRequest},
		{"unknown assignee", tenant, CreateInput{Name: "Ana", Email: "a@b.co", AssigneeID: &missing}, apperr.ErrBadRequest},
		{"foreign property", otherTenant, CreateInput{Name: "Ana", Email: "a@b.co", PropertyID: &f.listing.ID}, apperr.ErrForbidden},
		{"project on agency lead", tenant, CreateInput{Name: "Ana", Email: "a@b.co", ProjectID: &missing}, apperr.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.tenant, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	lead, err := f.svc.Create(ctx, tenant, CreateInput{Name: "Ana", Email: "a@b.co", PropertyID: &f.listing.ID, AssigneeID: &f.member.ID})
	require.NoError(t, err)
	assert.Equal(t, models.LeadSourceOther, lead.Source)
	assert.Equal(t, f.listing.ID, *lead.PropertyID)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("NotifyNewLead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()
	tenant := database.AgencyTenant(f.agency.ID)

	lead, err := f.svc.Create(ctx, tenant, CreateInput{Name: "Ana", Email: "a@b.co"})
	require.NoError(t, err)

	contacted := models.LeadStatusContacted
	updated, err := f.svc.Update(ctx, tenant, lead.ID, Patch{Status: &contacted, AssigneeID: &f.member.ID})
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusContacted, updated.Status)
	assert.Equal(t, f.member.ID, *updated.AssigneeID)

	converted := models.LeadStatusConverted
	_, err = f.svc.Update(ctx, tenant, lead.ID, Patch{Status: &converted})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	lost := models.LeadStatusLost
	_, err = f.svc.Update(ctx, database.DeveloperTenant(1), lead.ID, Patch{Status: &lost})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.List(ctx, tenant, models.LeadFilter{Status: "OPEN"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestUpdate_KeepsContactDetails(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("NotifyNewLead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()
	tenant := database.AgencyTenant(f.agency.ID)

	lead, err := f.svc.Create(ctx, tenant, CreateInput{Name: "Ana", Email: "a@b.co"})
	require.NoError(t, err)

	blank := ""
	_, err = f.svc.Update(ctx, tenant, lead.ID, Patch{Email: &blank, Phone: &blank})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.svc.Update(ctx, tenant, lead.ID, Patch{Email: &blank})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	stored, err := f.db.GetLead(ctx, tenant, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", stored.Email)

	phone := "+351 912 000 000"
	updated, err := f.svc.Update(ctx, tenant, lead.ID, Patch{Email: &blank, Phone: &phone})
	require.NoError(t, err)
	assert.Empty(t, updated.Email)
	assert.Equal(t, phone, updated.Phone)

	invalid := "not-an-email"
	_, err = f.svc.Update(ctx, tenant, lead.ID, Patch{Email: &invalid})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}
