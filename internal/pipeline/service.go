package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/database"
	"estatehub/server/internal/metrics"
	"estatehub/server/internal/models"
)

// Column is one stage of the board.
type Column struct {
	Stage         models.Stage  `json:"stage"`
	Probability   float64       `json:"probability"`
	Count         int           `json:"count"`
	TotalValue    float64       `json:"total_value"`
	WeightedValue float64       `json:"weighted_value"`
	Deals         []models.Deal `json:"deals"`
}

type Board struct {
	Columns       []Column `json:"columns"`
	TotalValue    float64  `json:"total_value"`
	WeightedValue float64  `json:"weighted_value"`
}

type CreateInput struct {
	Title          string       `json:"title"`
	Value          float64      `json:"value"`
	Stage          models.Stage `json:"stage"`
	LeadID         *uint        `json:"lead_id"`
	PropertyID     *uint        `json:"property_id"`
	AgentID        *uint        `json:"agent_id"`
	CommissionRate *float64     `json:"commission_rate"`
}

// Patch lists the editable deal fields; nil means unchanged.
type Patch struct {
	Title          *string       `json:"title"`
	Value          *float64      `json:"value"`
	Stage          *models.Stage `json:"stage"`
	Position       *int          `json:"position"`
	CommissionRate *float64      `json:"commission_rate"`
	AgentID        *uint         `json:"agent_id"`
}

type ConvertInput struct {
	Title   string `json:"title"`
	AgentID *uint  `json:"agent_id"`
}

type transition struct {
	from, to models.Stage
}

type Service struct {
	db     *database.Database
	logger *logrus.Logger
}

func NewService(db *database.Database, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Service{db: db, logger: logger}
}

// Board returns every stage in order, empty ones included.
func (s *Service) Board(ctx context.Context, agencyID uint, filter models.DealFilter) (*Board, error) {
	deals, err := s.db.ListDeals(ctx, agencyID, filter)
	if err != nil {
		return nil, err
	}

	byStage := make(map[models.Stage][]models.Deal, len(models.Stages))
	for _, d := range deals {
		byStage[d.Stage] = append(byStage[d.Stage], d)
	}

	board := &Board{Columns: make([]Column, 0, len(models.Stages))}
	for _, stage := range models.Stages {
		col := Column{
			Stage:       stage,
			Probability: Probability(stage),
			Deals:       byStage[stage],
		}
		if col.Deals == nil {
			col.Deals = []models.Deal{}
		}
		for _, d := range col.Deals {
			col.TotalValue += d.Value
		}
		col.Count = len(col.Deals)
		col.TotalValue = roundCents(col.TotalValue)
		col.WeightedValue = roundCents(col.TotalValue * col.Probability / 100)

		if !stage.Closed() {
			board.TotalValue += col.TotalValue
			board.WeightedValue += col.WeightedValue
		}
		board.Columns = append(board.Columns, col)
	}
	board.TotalValue = roundCents(board.TotalValue)
	board.WeightedValue = roundCents(board.WeightedValue)
	return board, nil
}

func (s *Service) Get(ctx context.Context, agencyID, id uint) (*models.Deal, error) {
	return s.db.GetDeal(ctx, agencyID, id)
}

// Create appends the deal to the end of its stage.
func (s *Service) Create(ctx context.Context, agencyID uint, in CreateInput) (*models.Deal, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperr.BadRequest("title is required")
	}
	if in.Value < 0 {
		return nil, apperr.BadRequest("value must not be negative")
	}
	if in.Stage == "" {
		in.Stage = models.StageNew
	}
	if !in.Stage.Valid() {
		return nil, apperr.BadRequest("unknown pipeline stage %q", in.Stage)
	}
	if in.CommissionRate != nil && (*in.CommissionRate < 0 || *in.CommissionRate > 100) {
		return nil, apperr.BadRequest("commission rate must be between 0 and 100")
	}

	var created uint
	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		deal, err := s.insert(ctx, tx, agencyID, in)
		if err != nil {
			return err
		}
		created = deal.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"agency_id": agencyID,
		"deal_id":   created,
		"stage":     in.Stage,
	}).Info("Deal created")
	return s.db.GetDeal(ctx, agencyID, created)
}

// insert stores a validated deal at the end of its stage column.
func (s *Service) insert(ctx context.Context, tx *database.Database, agencyID uint, in CreateInput) (*models.Deal, error) {
	if err := s.checkLinks(ctx, tx, agencyID, in.LeadID, in.PropertyID); err != nil {
		return nil, err
	}
	agent, err := s.agent(ctx, tx, agencyID, in.AgentID)
	if err != nil {
		return nil, err
	}
	rate, err := s.defaultRate(ctx, tx, agencyID, agent, in.CommissionRate)
	if err != nil {
		return nil, err
	}

	ids, err := tx.DealIDsInStage(ctx, agencyID, in.Stage)
	if err != nil {
		return nil, err
	}

	deal := &models.Deal{
		AgencyID:         agencyID,
		LeadID:           in.LeadID,
		PropertyID:       in.PropertyID,
		AgentID:          in.AgentID,
		Title:            in.Title,
		Value:            in.Value,
		Stage:            in.Stage,
		Position:         len(ids),
		CommissionRate:   rate,
		CommissionAmount: Commission(in.Value, rate),
	}
	if err := tx.CreateDeal(ctx, deal); err != nil {
		return nil, err
	}

	if in.Stage.Closed() {
		if err := s.applyStageEffects(ctx, tx, deal, "", in.Stage); err != nil {
			return nil, err
		}
	}
	return deal, nil
}

// Update applies the patch in one transaction. Moves compact the source
// column and renumber the target column.
func (s *Service) Update(ctx context.Context, agencyID, id uint, patch Patch) (*models.Deal, error) {
	if patch.Stage != nil && !patch.Stage.Valid() {
		return nil, apperr.BadRequest("unknown pipeline stage %q", *patch.Stage)
	}
	if patch.Value != nil && *patch.Value < 0 {
		return nil, apperr.BadRequest("value must not be negative")
	}
	if patch.CommissionRate != nil && (*patch.CommissionRate < 0 || *patch.CommissionRate > 100) {
		return nil, apperr.BadRequest("commission rate must be between 0 and 100")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, apperr.BadRequest("title must not be empty")
	}

	var moved *transition
	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		deal, err := tx.GetDeal(ctx, agencyID, id)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if patch.Title != nil {
			updates["title"] = strings.TrimSpace(*patch.Title)
		}
		if patch.AgentID != nil {
			if _, err := s.agent(ctx, tx, agencyID, patch.AgentID); err != nil {
				return err
			}
			updates["agent_id"] = *patch.AgentID
			deal.AgentID = patch.AgentID
		}

		recalc := false
		if patch.Value != nil && *patch.Value != deal.Value {
			deal.Value = *patch.Value
			updates["value"] = deal.Value
			recalc = true
		}
		if patch.CommissionRate != nil && *patch.CommissionRate != deal.CommissionRate {
			deal.CommissionRate = *patch.CommissionRate
			updates["commission_rate"] = deal.CommissionRate
			recalc = true
		}
		if recalc {
			deal.CommissionAmount = Commission(deal.Value, deal.CommissionRate)
			updates["commission_amount"] = deal.CommissionAmount
		}

		from := deal.Stage
		to := from
		if patch.Stage != nil {
			to = *patch.Stage
		}
		if patch.Stage != nil || patch.Position != nil {
			if err := s.reorder(ctx, tx, deal, to, patch.Position); err != nil {
				return err
			}
			deal.Stage = to
		}

		if err := tx.UpdateDeal(ctx, deal.ID, updates); err != nil {
			return err
		}

		if from != to {
			moved = &transition{from: from, to: to}
			return s.applyStageEffects(ctx, tx, deal, from, to)
		}
		if to == models.StageClosedWon && (recalc || patch.AgentID != nil) {
			return s.upsertCommission(ctx, tx, deal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if moved != nil {
		metrics.RecordStageTransition(string(moved.from), string(moved.to))
		s.logger.WithFields(logrus.Fields{
			"agency_id": agencyID,
			"deal_id":   id,
			"from":      moved.from,
			"to":        moved.to,
		}).Info("Deal moved")
	}
	return s.db.GetDeal(ctx, agencyID, id)
}

// reorder moves deal to index of stage to. A nil index keeps the current
// position inside the same stage and appends when the stage changes.
func (s *Service) reorder(ctx context.Context, tx *database.Database, deal *models.Deal, to models.Stage, index *int) error {
	src, err := tx.DealIDsInStage(ctx, deal.AgencyID, deal.Stage)
	if err != nil {
		return err
	}

	sameStage := deal.Stage == to
	dst := src
	if !sameStage {
		if dst, err = tx.DealIDsInStage(ctx, deal.AgencyID, to); err != nil {
			return err
		}
	}

	target := len(dst)
	if index != nil {
		target = *index
	} else if sameStage {
		for i, v := range src {
			if v == deal.ID {
				target = i
				break
			}
		}
	}

	newSrc, newDst := move(src, dst, deal.ID, target, sameStage)
	if !sameStage {
		if err := tx.SaveStageOrder(ctx, deal.Stage, newSrc); err != nil {
			return err
		}
	}
	return tx.SaveStageOrder(ctx, to, newDst)
}

// applyStageEffects keeps closedAt, commissions, lead and property status in
// line with a stage change. from is empty for newly created deals.
func (s *Service) applyStageEffects(ctx context.Context, tx *database.Database, deal *models.Deal, from, to models.Stage) error {
	switch {
	case to == models.StageClosedWon:
		if err := tx.UpdateDeal(ctx, deal.ID, map[string]any{"closed_at": tx.GetDB().NowFunc()}); err != nil {
			return err
		}
		if err := s.upsertCommission(ctx, tx, deal); err != nil {
			return err
		}
		if deal.LeadID != nil {
			if err := tx.SetLeadStatus(ctx, *deal.LeadID, models.LeadStatusConverted); err != nil {
				return err
			}
		}
		if deal.PropertyID != nil {
			return s.markPropertyClosed(ctx, tx, *deal.PropertyID)
		}
		return nil

	case to == models.StageClosedLost:
		if err := tx.UpdateDeal(ctx, deal.ID, map[string]any{"closed_at": tx.GetDB().NowFunc()}); err != nil {
			return err
		}
		if err := tx.DeletePendingCommission(ctx, deal.ID); err != nil {
			return err
		}
		if deal.LeadID != nil {
			return tx.SetLeadStatus(ctx, *deal.LeadID, models.LeadStatusLost)
		}
		return nil

	case from.Closed():
		if err := tx.UpdateDeal(ctx, deal.ID, map[string]any{"closed_at": nil}); err != nil {
			return err
		}
		return tx.DeletePendingCommission(ctx, deal.ID)
	}
	return nil
}

func (s *Service) upsertCommission(ctx context.Context, tx *database.Database, deal *models.Deal) error {
	return tx.UpsertCommission(ctx, &models.Commission{
		DealID:   deal.ID,
		AgencyID: deal.AgencyID,
		MemberID: deal.AgentID,
		Rate:     deal.CommissionRate,
		Amount:   Commission(deal.Value, deal.CommissionRate),
		Status:   models.CommissionPending,
	})
}

func (s *Service) markPropertyClosed(ctx context.Context, tx *database.Database, propertyID uint) error {
	property, err := tx.GetProperty(ctx, propertyID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	status := models.PropertyStatusSold
	if property.ListingType == models.ListingTypeRent {
		status = models.PropertyStatusRented
	}
	return tx.SetPropertyStatus(ctx, propertyID, status)
}

// Delete removes the deal and closes the gap in its stage.
func (s *Service) Delete(ctx context.Context, agencyID, id uint) error {
	return s.db.Transaction(ctx, func(tx *database.Database) error {
		deal, err := tx.GetDeal(ctx, agencyID, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteDeal(ctx, deal.ID); err != nil {
			return err
		}
		ids, err := tx.DealIDsInStage(ctx, agencyID, deal.Stage)
		if err != nil {
			return err
		}
		return tx.SaveStageOrder(ctx, deal.Stage, ids)
	})
}

// ConvertLead opens a QUALIFIED deal for the lead. The value defaults to the
// lead budget, then to the price of the linked property.
func (s *Service) ConvertLead(ctx context.Context, agencyID, leadID uint, in ConvertInput) (*models.Deal, error) {
	var created uint
	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		lead, err := tx.GetLead(ctx, database.AgencyTenant(agencyID), leadID)
		if err != nil {
			return err
		}
		if lead.Status == models.LeadStatusConverted || lead.Status == models.LeadStatusLost {
			return apperr.Conflict("lead %d is already %s", lead.ID, strings.ToLower(string(lead.Status)))
		}
		open, err := tx.HasOpenDeal(ctx, lead.ID)
		if err != nil {
			return err
		}
		if open {
			return apperr.Conflict("lead %d already has an open deal", lead.ID)
		}

		value := 0.0
		if lead.Budget != nil {
			value = *lead.Budget
		} else if lead.PropertyID != nil {
			property, err := tx.GetProperty(ctx, *lead.PropertyID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			if property != nil {
				value = property.Price
			}
		}

		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = fmt.Sprintf("Deal: %s", lead.Name)
		}
		agentID := in.AgentID
		if agentID == nil {
			agentID = lead.AssigneeID
		}

		deal, err := s.insert(ctx, tx, agencyID, CreateInput{
			Title:      title,
			Value:      value,
			Stage:      models.StageQualified,
			LeadID:     &lead.ID,
			PropertyID: lead.PropertyID,
			AgentID:    agentID,
		})
		if err != nil {
			return err
		}
		created = deal.ID

		if lead.Status == models.LeadStatusNew || lead.Status == models.LeadStatusContacted {
			return tx.SetLeadStatus(ctx, lead.ID, models.LeadStatusQualified)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"agency_id": agencyID,
		"lead_id":   leadID,
		"deal_id":   created,
	}).Info("Lead converted")
	return s.db.GetDeal(ctx, agencyID, created)
}

func (s *Service) ListCommissions(ctx context.Context, agencyID uint, status models.CommissionStatus, memberID *uint) ([]models.Commission, error) {
	if status != "" && status != models.CommissionPending && status != models.CommissionPaid {
		return nil, apperr.BadRequest("unknown commission status %q", status)
	}
	return s.db.ListCommissions(ctx, agencyID, status, memberID)
}

// PayCommission marks a pending commission as paid.
func (s *Service) PayCommission(ctx context.Context, agencyID, id uint) (*models.Commission, error) {
	commission, err := s.db.GetCommission(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if commission.Status == models.CommissionPaid {
		return nil, apperr.Conflict("commission %d is already paid", id)
	}
	if err := s.db.MarkCommissionPaid(ctx, id); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"agency_id":     agencyID,
		"commission_id": id,
		"amount":        commission.Amount,
	}).Info("Commission paid")
	return s.db.GetCommission(ctx, agencyID, id)
}

func (s *Service) checkLinks(ctx context.Context, tx *database.Database, agencyID uint, leadID, propertyID *uint) error {
	if leadID != nil {
		if _, err := tx.GetLead(ctx, database.AgencyTenant(agencyID), *leadID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.BadRequest("lead %d does not belong to this agency", *leadID)
			}
			return err
		}
	}
	if propertyID != nil {
		property, err := tx.GetProperty(ctx, *propertyID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.BadRequest("property %d does not exist", *propertyID)
			}
			return err
		}
		if property.AgencyID != nil && *property.AgencyID != agencyID {
			return apperr.Forbidden("property %d belongs to another agency", *propertyID)
		}
	}
	return nil
}

func (s *Service) agent(ctx context.Context, tx *database.Database, agencyID uint, agentID *uint) (*models.Member, error) {
	if agentID == nil {
		return nil, nil
	}
	member, err := tx.GetMember(ctx, agencyID, *agentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.BadRequest("agent %d is not a member of this agency", *agentID)
	}
	return member, err
}

// defaultRate picks the explicit rate, then the agent's, then the agency's.
func (s *Service) defaultRate(ctx context.Context, tx *database.Database, agencyID uint, agent *models.Member, explicit *float64) (float64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if agent != nil && agent.CommissionRate > 0 {
		return agent.CommissionRate, nil
	}
	agency, err := tx.GetAgency(ctx, agencyID)
	if errors.Is(err, apperr.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return agency.DefaultCommissionRate, nil
}
