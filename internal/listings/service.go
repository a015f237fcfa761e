package listings

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

const geocodeTimeout = 30 * time.Second

// Geocoder resolves listing addresses that were created without coordinates.
type Geocoder interface {
	GeocodeAddress(ctx context.Context, address, city string) (float64, float64, error)
}

type Input struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Type        models.PropertyType   `json:"type"`
	ListingType models.ListingType    `json:"listing_type"`
	Status      models.PropertyStatus `json:"status"`
	Price       float64               `json:"price"`
	Area        *float64              `json:"area"`
	Bedrooms    *int                  `json:"bedrooms"`
	Bathrooms   *int                  `json:"bathrooms"`
	City        string                `json:"city"`
	District    string                `json:"district"`
	Address     string                `json:"address"`
	Latitude    *float64              `json:"latitude"`
	Longitude   *float64              `json:"longitude"`
	Featured    bool                  `json:"featured"`
	ProjectID   *uint                 `json:"project_id"`
	ExpiresAt   *time.Time            `json:"expires_at"`

	// Only honoured for ADMIN callers
	AgencyID    *uint `json:"agency_id"`
	DeveloperID *uint `json:"developer_id"`
}

// Patch lists the editable fields; nil means unchanged.
type Patch struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Type        *models.PropertyType   `json:"type"`
	ListingType *models.ListingType    `json:"listing_type"`
	Status      *models.PropertyStatus `json:"status"`
	Price       *float64               `json:"price"`
	Area        *float64               `json:"area"`
	Bedrooms    *int                   `json:"bedrooms"`
	Bathrooms   *int                   `json:"bathrooms"`
	City        *string                `json:"city"`
	District    *string                `json:"district"`
	Address     *string                `json:"address"`
	Latitude    *float64               `json:"latitude"`
	Longitude   *float64               `json:"longitude"`
	Featured    *bool                  `json:"featured"`
	ExpiresAt   *time.Time             `json:"expires_at"`
}

type Service struct {
	db       *database.Database
	geocoder Geocoder
	logger   *logrus.Logger
	wg       sync.WaitGroup
}

// NewService builds the listing service. A nil geocoder leaves coordinates unset.
func NewService(db *database.Database, geocoder Geocoder, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{db: db, geocoder: geocoder, logger: logger}
}

// Wait blocks until background geocoding started by Create has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// CanManage reports whether the caller owns the listing.
func CanManage(claims *auth.Claims, p *models.Property) bool {
	if claims == nil {
		return false
	}
	if claims.Role == models.RoleAdmin {
		return true
	}
	if claims.AgencyID != nil && p.AgencyID != nil && *claims.AgencyID == *p.AgencyID {
		return true
	}
	return claims.DeveloperID != nil && p.DeveloperID != nil && *claims.DeveloperID == *p.DeveloperID
}

// Search lists ACTIVE listings. Callers looking at their own agency or
// developer inventory see every status, optionally narrowed by status.
func (s *Service) Search(ctx context.Context, claims *auth.Claims, filter models.PropertyFilter, status string) (*models.PropertyPage, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperr.BadRequest("unknown property type %q", filter.Type)
	}
	if filter.ListingType != "" && !filter.ListingType.Valid() {
		return nil, apperr.BadRequest("unknown listing type %q", filter.ListingType)
	}

	filter.Statuses = []models.PropertyStatus{models.PropertyStatusActive}
	if ownInventory(claims, filter) {
		filter.Statuses = nil
		if status != "" {
			st := models.PropertyStatus(strings.ToUpper(status))
			if !st.Valid() {
				return nil, apperr.BadRequest("unknown property status %q", status)
			}
			filter.Statuses = []models.PropertyStatus{st}
		}
	}
	return s.db.SearchProperties(ctx, filter)
}

func ownInventory(claims *auth.Claims, f models.PropertyFilter) bool {
	if claims == nil {
		return false
	}
	if claims.Role == models.RoleAdmin && (f.AgencyID != nil || f.DeveloperID != nil) {
		return true
	}
	if f.AgencyID != nil && claims.AgencyID != nil && *f.AgencyID == *claims.AgencyID {
		return true
	}
	return f.DeveloperID != nil && claims.DeveloperID != nil && *f.DeveloperID == *claims.DeveloperID
}

// Get returns a listing and records the view. Listings that are not ACTIVE
// are only visible to their owners.
func (s *Service) Get(ctx context.Context, claims *auth.Claims, id uint) (*models.Property, error) {
	property, err := s.db.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if property.Status != models.PropertyStatusActive && !CanManage(claims, property) {
		return nil, apperr.NotFound("property %d not found", id)
	}

	var viewer *uint
	if claims != nil {
		viewer = &claims.UserID
	}
	if err := s.db.RecordPropertyView(ctx, id, viewer); err != nil {
		return nil, err
	}
	property.ViewCount++
	return property, nil
}

func validateInput(in *Input) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperr.BadRequest("title is required")
	}
	if !in.Type.Valid() {
		return apperr.BadRequest("unknown property type %q", in.Type)
	}
	if !in.ListingType.Valid() {
		return apperr.BadRequest("unknown listing type %q", in.ListingType)
	}
	if in.Status == "" {
		in.Status = models.PropertyStatusActive
	}
	if !in.Status.Valid() {
		return apperr.BadRequest("unknown property status %q", in.Status)
	}
	if in.Price <= 0 {
		return apperr.BadRequest("price must be positive")
	}
	if in.Area != nil && *in.Area <= 0 {
		return apperr.BadRequest("area must be positive")
	}
	if err := validRooms(in.Bedrooms, in.Bathrooms); err != nil {
		return err
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return apperr.BadRequest("latitude and longitude must be set together")
	}
	return validCoordinates(in.Latitude, in.Longitude)
}

func validRooms(bedrooms, bathrooms *int) error {
	if bedrooms != nil && *bedrooms < 0 {
		return apperr.BadRequest("bedrooms cannot be negative")
	}
	if bathrooms != nil && *bathrooms < 0 {
		return apperr.BadRequest("bathrooms cannot be negative")
	}
	return nil
}

func validCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return apperr.BadRequest("latitude out of range")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return apperr.BadRequest("longitude out of range")
	}
	return nil
}

// Create stores a listing owned by the caller's agency or developer.
func (s *Service) Create(ctx context.Context, claims *auth.Claims, in Input) (*models.Property, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	property := &models.Property{
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		ListingType: in.ListingType,
		Status:      in.Status,
		Price:       in.Price,
		Area:        in.Area,
		Bedrooms:    in.Bedrooms,
		Bathrooms:   in.Bathrooms,
		City:        strings.TrimSpace(in.City),
		District:    strings.TrimSpace(in.District),
		Address:     strings.TrimSpace(in.Address),
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Featured:    in.Featured,
		ExpiresAt:   in.ExpiresAt,
	}
	if err := s.assignOwner(ctx, claims, in, property); err != nil {
		return nil, err
	}

	if err := s.db.CreateProperty(ctx, property); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"property_id": property.ID,
		"user_id":     claims.UserID,
	}).Info("Property created")

	if s.geocoder != nil && !property.HasCoordinates() && property.Address != "" && property.City != "" {
		s.wg.Add(1)
		go s.geocode(property.ID, property.Address, property.City)
	}
	return property, nil
}

func (s *Service) assignOwner(ctx context.Context, claims *auth.Claims, in Input, p *models.Property) error {
	switch {
	case claims.Role == models.RoleAdmin:
		if (in.AgencyID == nil) == (in.DeveloperID == nil) {
			return apperr.BadRequest("exactly one of agencyId or developerId is required")
		}
		p.AgencyID, p.DeveloperID = in.AgencyID, in.DeveloperID
	case claims.AgencyID != nil:
		p.AgencyID = claims.AgencyID
		if claims.Role == models.RoleAgent {
			member, err := s.db.GetMemberByUser(ctx, claims.UserID)
			if err != nil {
				return err
			}
			p.AgentID = &member.ID
		}
	case claims.DeveloperID != nil:
		p.DeveloperID = claims.DeveloperID
	default:
		return apperr.Forbidden("only agencies and developers can publish listings")
	}

	if in.ProjectID != nil {
		if p.DeveloperID == nil {
			return apperr.BadRequest("only developer listings belong to a project")
		}
		project, err := s.db.GetProject(ctx, *in.ProjectID)
		if err != nil {
			return err
		}
		if project.DeveloperID != *p.DeveloperID {
			return apperr.Forbidden("project %d belongs to another developer", project.ID)
		}
		p.ProjectID = &project.ID
	}
	return nil
}

func (s *Service) geocode(id uint, address, city string) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), geocodeTimeout)
	defer cancel()

	lat, lng, err := s.geocoder.GeocodeAddress(ctx, address, city)
	if err != nil {
		s.logger.WithError(err).WithField("property_id", id).Warn("Could not geocode new property")
		return
	}
	if err := s.db.SetCoordinates(ctx, id, lat, lng); err != nil {
		s.logger.WithError(err).WithField("property_id", id).Error("Failed to store coordinates")
	}
}

func (s *Service) loadOwned(ctx context.Context, claims *auth.Claims, id uint) (*models.Property, error) {
	property, err := s.db.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanManage(claims, property) {
		return nil, apperr.Forbidden("property %d belongs to another organisation", id)
	}
	return property, nil
}

func (s *Service) Update(ctx context.Context, claims *auth.Claims, id uint, patch Patch) (*models.Property, error) {
	current, err := s.loadOwned(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperr.BadRequest("title cannot be empty")
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return nil, apperr.BadRequest("unknown property type %q", *patch.Type)
		}
		updates["type"] = *patch.Type
	}
	if patch.ListingType != nil {
		if !patch.ListingType.Valid() {
			return nil, apperr.BadRequest("unknown listing type %q", *patch.ListingType)
		}
		updates["listing_type"] = *patch.ListingType
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.BadRequest("unknown property status %q", *patch.Status)
		}
		updates["status"] = *patch.Status
	}
	if patch.Price != nil {
		if *patch.Price <= 0 {
			return nil, apperr.BadRequest("price must be positive")
		}
		updates["price"] = *patch.Price
	}
	if patch.Area != nil {
		if *patch.Area <= 0 {
			return nil, apperr.BadRequest("area must be positive")
		}
		updates["area"] = *patch.Area
	}
	if err := validRooms(patch.Bedrooms, patch.Bathrooms); err != nil {
		return nil, err
	}
	if patch.Bedrooms != nil {
		updates["bedrooms"] = *patch.Bedrooms
	}
	if patch.Bathrooms != nil {
		updates["bathrooms"] = *patch.Bathrooms
	}
	if patch.City != nil {
		updates["city"] = strings.TrimSpace(*patch.City)
	}
	if patch.District != nil {
		updates["district"] = strings.TrimSpace(*patch.District)
	}
	if patch.Address != nil {
		updates["address"] = strings.TrimSpace(*patch.Address)
	}
	if err := validCoordinates(patch.Latitude, patch.Longitude); err != nil {
		return nil, err
	}
	lat, lng := current.Latitude, current.Longitude
	if patch.Latitude != nil {
		lat = patch.Latitude
	}
	if patch.Longitude != nil {
		lng = patch.Longitude
	}
	if (lat == nil) != (lng == nil) {
		return nil, apperr.BadRequest("latitude and longitude must be set together")
	}
	if patch.Latitude != nil {
		updates["latitude"] = *patch.Latitude
	}
	if patch.Longitude != nil {
		updates["longitude"] = *patch.Longitude
	}
	if patch.Featured != nil {
		updates["featured"] = *patch.Featured
	}
	if patch.ExpiresAt != nil {
		updates["expires_at"] = patch.ExpiresAt.UTC()
	}

	return s.db.UpdateProperty(ctx, id, updates)
}

// Archive hides a listing from the marketplace. Rows are kept for analytics.
func (s *Service) Archive(ctx context.Context, claims *auth.Claims, id uint) error {
	if _, err := s.loadOwned(ctx, claims, id); err != nil {
		return err
	}
	return s.db.SetPropertyStatus(ctx, id, models.PropertyStatusArchived)
}

func (s *Service) AddFavorite(ctx context.Context, userID, propertyID uint) error {
	if _, err := s.db.GetProperty(ctx, propertyID); err != nil {
		return err
	}
	return s.db.AddFavorite(ctx, userID, propertyID)
}

func (s *Service) RemoveFavorite(ctx context.Context, userID, propertyID uint) error {
	return s.db.RemoveFavorite(ctx, userID, propertyID)
}

func (s *Service) Favorites(ctx context.Context, userID uint) ([]models.Favorite, error) {
	favorites, err := s.db.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	if favorites == nil {
		favorites = []models.Favorite{}
	}
	return favorites, nil
}

