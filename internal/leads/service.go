package leads

import (
	"context"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/database"
	"estatehub/server/internal/metrics"
	"estatehub/server/internal/models"
)

// Notifier announces new leads, typically over Telegram.
type Notifier interface {
	NotifyNewLead(ctx context.Context, lead *models.Lead, property *models.Property, agency *models.Agency) error
}

type CreateInput struct {
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	Source     models.LeadSource `json:"source"`
	Budget     *float64          `json:"budget"`
	Notes      string            `json:"notes"`
	PropertyID *uint             `json:"property_id"`
	ProjectID  *uint             `json:"project_id"`
	AssigneeID *uint             `json:"assignee_id"`
}

// Patch lists the editable lead fields; nil means unchanged.
type Patch struct {
	Name       *string            `json:"name"`
	Email      *string            `json:"email"`
	Phone      *string            `json:"phone"`
	Status     *models.LeadStatus `json:"status"`
	Budget     *float64           `json:"budget"`
	Notes      *string            `json:"notes"`
	AssigneeID *uint              `json:"assignee_id"`
}

// Inquiry is a contact request sent from a public listing page.
type Inquiry struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Message string   `json:"message"`
	Budget  *float64 `json:"budget"`
}

type Page struct {
	Items []models.Lead `json:"items"`
	Total int64         `json:"total"`
}

type Service struct {
	db       *database.Database
	notifier Notifier
	logger   *logrus.Logger
}

// NewService builds the lead service. A nil notifier disables announcements.
func NewService(db *database.Database, notifier Notifier, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{db: db, notifier: notifier, logger: logger}
}

func validateContact(name, email, phone string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.BadRequest("name is required")
	}
	if strings.TrimSpace(email) == "" && strings.TrimSpace(phone) == "" {
		return apperr.BadRequest("an email or a phone number is required")
	}
	if email = strings.TrimSpace(email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return apperr.BadRequest("invalid email address %q", email)
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenant database.Tenant, filter models.LeadFilter) (*Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.BadRequest("unknown lead status %q", filter.Status)
	}
	if filter.Source != "" && !filter.Source.Valid() {
		return nil, apperr.BadRequest("unknown lead source %q", filter.Source)
	}
	items, total, err := s.db.ListLeads(ctx, tenant, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Lead{}
	}
	return &Page{Items: items, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, tenant database.Tenant, id uint) (*models.Lead, error) {
	return s.db.GetLead(ctx, tenant, id)
}

// Create records a lead entered by CRM staff.
func (s *Service) Create(ctx context.Context, tenant database.Tenant, in CreateInput) (*models.Lead, error) {
	if err := validateContact(in.Name, in.Email, in.Phone); err != nil {
		return nil, err
	}
	if in.Source == "" {
		in.Source = models.LeadSourceOther
	}
	if !in.Source.Valid() {
		return nil, apperr.BadRequest("unknown lead source %q", in.Source)
	}
	if in.Budget != nil && *in.Budget < 0 {
		return nil, apperr.BadRequest("budget cannot be negative")
	}

	lead := &models.Lead{
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Source:      in.Source,
		Status:      models.LeadStatusNew,
		Budget:      in.Budget,
		Notes:       in.Notes,
		AgencyID:    tenant.AgencyID,
		DeveloperID: tenant.DeveloperID,
		ProjectID:   in.ProjectID,
	}

	var property *models.Property
	if in.PropertyID != nil {
		p, err := s.ownedProperty(ctx, tenant, *in.PropertyID)
		if err != nil {
			return nil, err
		}
		property = p
		lead.PropertyID = &p.ID
		if lead.ProjectID == nil {
			lead.ProjectID = p.ProjectID
		}
	}
	if in.ProjectID != nil {
		if err := s.checkProject(ctx, tenant, *in.ProjectID); err != nil {
			return nil, err
		}
	}
	if in.AssigneeID != nil {
		if err := s.checkAssignee(ctx, tenant, *in.AssigneeID); err != nil {
			return nil, err
		}
		lead.AssigneeID = in.AssigneeID
	}

	if err := s.store(ctx, lead); err != nil {
		return nil, err
	}
	s.notify(ctx, lead, property)
	return lead, nil
}

// Inquire turns a public inquiry about an ACTIVE listing into a WEBSITE lead
// owned by the listing's agency or developer.
func (s *Service) Inquire(ctx context.Context, propertyID uint, in Inquiry) (*models.Lead, error) {
	property, err := s.db.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property.Status != models.PropertyStatusActive {
		return nil, apperr.NotFound("property %d not found", propertyID)
	}
	if property.AgencyID == nil && property.DeveloperID == nil {
		return nil, apperr.BadRequest("property %d has no agency or developer to contact", propertyID)
	}
	if err := validateContact(in.Name, in.Email, in.Phone); err != nil {
		return nil, err
	}

	lead := &models.Lead{
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Source:      models.LeadSourceWebsite,
		Status:      models.LeadStatusNew,
		Budget:      in.Budget,
		Notes:       strings.TrimSpace(in.Message),
		PropertyID:  &property.ID,
		ProjectID:   property.ProjectID,
		AssigneeID:  property.AgentID,
		AgencyID:    property.AgencyID,
		DeveloperID: property.DeveloperID,
	}
	if property.AgencyID != nil {
		// agency listings belong to the agency, not the developer behind them
		lead.DeveloperID = nil
	}

	if err := s.store(ctx, lead); err != nil {
		return nil, err
	}
	s.notify(ctx, lead, property)
	return lead, nil
}

func (s *Service) store(ctx context.Context, lead *models.Lead) error {
	if err := s.db.CreateLead(ctx, lead); err != nil {
		return err
	}
	metrics.RecordLeadCreated(string(lead.Source))
	s.logger.WithFields(logrus.Fields{
		"lead_id": lead.ID,
		"source":  lead.Source,
	}).Info("Lead created")
	return nil
}

// notify never fails the request; delivery problems are only logged.
func (s *Service) notify(ctx context.Context, lead *models.Lead, property *models.Property) {
	if s.notifier == nil {
		return
	}
	var agency *models.Agency
	if lead.AgencyID != nil {
		a, err := s.db.GetAgency(ctx, *lead.AgencyID)
		if err != nil {
			s.logger.WithError(err).WithField("lead_id", lead.ID).Warn("Could not load agency for notification")
		}
		agency = a
	}
	if err := s.notifier.NotifyNewLead(ctx, lead, property, agency); err != nil {
		s.logger.WithError(err).WithField("lead_id", lead.ID).Error("Failed to send lead notification")
	}
}

// Update edits a lead. CONVERTED is reserved for the deal pipeline.
func (s *Service) Update(ctx context.Context, tenant database.Tenant, id uint, patch Patch) (*models.Lead, error) {
	current, err := s.db.GetLead(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.BadRequest("name cannot be empty")
		}
		updates["name"] = name
	}
	name, email, phone := current.Name, current.Email, current.Phone
	if patch.Name != nil {
		name = *patch.Name
	}
	if patch.Email != nil {
		email = strings.TrimSpace(*patch.Email)
		updates["email"] = email
	}
	if patch.Phone != nil {
		phone = strings.TrimSpace(*patch.Phone)
		updates["phone"] = phone
	}
	if err := validateContact(name, email, phone); err != nil {
		return nil, err
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.BadRequest("unknown lead status %q", *patch.Status)
		}
		if *patch.Status == models.LeadStatusConverted && current.Status != models.LeadStatusConverted {
			return nil, apperr.BadRequest("leads are converted by winning a deal")
		}
		updates["status"] = *patch.Status
	}
	if patch.Budget != nil {
		if *patch.Budget < 0 {
			return nil, apperr.BadRequest("budget cannot be negative")
		}
		updates["budget"] = *patch.Budget
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.AssigneeID != nil {
		if err := s.checkAssignee(ctx, tenant, *patch.AssigneeID); err != nil {
			return nil, err
		}
		updates["assignee_id"] = *patch.AssigneeID
	}

	return s.db.UpdateLead(ctx, tenant, id, updates)
}

func (s *Service) ownedProperty(ctx context.Context, tenant database.Tenant, id uint) (*models.Property, error) {
	property, err := s.db.GetProperty(ctx, id)
	if err != nil {
		return nil, apperr.BadRequest("property %d does not exist", id)
	}
	owned := (tenant.AgencyID != nil && property.AgencyID != nil && *tenant.AgencyID == *property.AgencyID) ||
		(tenant.DeveloperID != nil && property.DeveloperID != nil && *tenant.DeveloperID == *property.DeveloperID)
	if !owned {
		return nil, apperr.Forbidden("property %d belongs to another organisation", id)
	}
	return property, nil
}

func (s *Service) checkProject(ctx context.Context, tenant database.Tenant, id uint) error {
	if tenant.DeveloperID == nil {
		return apperr.BadRequest("only developer leads belong to a project")
	}
	project, err := s.db.GetProject(ctx, id)
	if err != nil {
		return apperr.BadRequest("project %d does not exist", id)
	}
	if project.DeveloperID != *tenant.DeveloperID {
		return apperr.Forbidden("project %d belongs to another developer", id)
	}
	return nil
}

func (s *Service) checkAssignee(ctx context.Context, tenant database.Tenant, memberID uint) error {
	if tenant.AgencyID == nil {
		return apperr.BadRequest("only agency leads can be assigned to an agent")
	}
	if _, err := s.db.GetMember(ctx, *tenant.AgencyID, memberID); err != nil {
		return apperr.BadRequest("agent %d is not a member of this agency", memberID)
	}
	return nil
}
