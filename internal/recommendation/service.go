package recommendation

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

const (
	DefaultLimit = 6
	MaxLimit     = 24

	// priceWindow and areaWindow are the relative ranges around the reference
	priceWindow = 0.2
	areaWindow  = 0.2

	candidatePool   = 500
	historySize     = 20
	DefaultRadiusKm = 2.0
	MaxRadiusKm     = 50.0
)

// NearbyProperty is a property with its distance from the reference.
type NearbyProperty struct {
	models.Property
	DistanceKm float64 `json:"distance_km"`
}

type Service struct {
	db     *database.Database
	logger *logrus.Logger
}

func NewService(db *database.Database, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{db: db, logger: logger}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// Similar lists active properties of the same type and listing type priced
// within 20% (and sized within 20% when the area is known).
func (s *Service) Similar(ctx context.Context, propertyID uint, limit int) ([]models.Property, error) {
	limit = clampLimit(limit, DefaultLimit, MaxLimit)

	source, err := s.db.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	filter := models.PropertyFilter{
		Type:        source.Type,
		ListingType: source.ListingType,
		Statuses:    []models.PropertyStatus{models.PropertyStatusActive},
		MinPrice:    ptr(source.Price * (1 - priceWindow)),
		MaxPrice:    ptr(source.Price * (1 + priceWindow)),
	}
	if source.Area != nil && *source.Area > 0 {
		filter.MinArea = ptr(*source.Area * (1 - areaWindow))
		filter.MaxArea = ptr(*source.Area * (1 + areaWindow))
	}

	candidates, err := s.db.FindProperties(ctx, filter, "featured DESC, created_at DESC", candidatePool)
	if err != nil {
		return nil, err
	}

	out := make([]models.Property, 0, len(candidates))
	for _, c := range candidates {
		if c.ID != source.ID {
			out = append(out, c)
		}
	}
	rank(out, func(city string) bool { return strings.EqualFold(city, source.City) }, source.Price)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// rank orders featured first, then preferred cities, then closest price, then newest.
func rank(properties []models.Property, preferred func(city string) bool, price float64) {
	sort.SliceStable(properties, func(i, j int) bool {
		a, b := &properties[i], &properties[j]
		if a.Featured != b.Featured {
			return a.Featured
		}
		aCity, bCity := preferred(a.City), preferred(b.City)
		if aCity != bCity {
			return aCity
		}
		da, db := math.Abs(a.Price-price), math.Abs(b.Price-price)
		if da != db {
			return da < db
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// profile summarises what a user looked at.
type profile struct {
	types     map[models.PropertyType]bool
	cities    map[string]bool
	meanPrice float64
}

func (p *profile) prefers(city string) bool {
	return p.cities[strings.ToLower(city)]
}

func buildProfile(history []models.Property) *profile {
	if len(history) == 0 {
		return nil
	}
	p := &profile{types: map[models.PropertyType]bool{}, cities: map[string]bool{}}
	var sum float64
	for _, h := range history {
		p.types[h.Type] = true
		if h.City != "" {
			p.cities[strings.ToLower(h.City)] = true
		}
		sum += h.Price
	}
	p.meanPrice = sum / float64(len(history))
	return p
}

// ForUser recommends active listings resembling the user's favorites and
// recent views. Users without history get featured, then newest listings.
// Favorited properties are never recommended.
func (s *Service) ForUser(ctx context.Context, userID uint, limit int) ([]models.Property, error) {
	limit = clampLimit(limit, DefaultLimit, MaxLimit)

	favorites, err := s.db.FavoritePropertyIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	viewed, err := s.db.RecentlyViewedPropertyIDs(ctx, userID, historySize)
	if err != nil {
		return nil, err
	}

	exclude := make(map[uint]bool, len(favorites))
	for _, id := range favorites {
		exclude[id] = true
	}

	history, err := s.db.GetProperties(ctx, append(append([]uint{}, favorites...), viewed...))
	if err != nil {
		return nil, err
	}

	out := make([]models.Property, 0, limit)
	if p := buildProfile(history); p != nil {
		filter := models.PropertyFilter{
			Statuses: []models.PropertyStatus{models.PropertyStatusActive},
			MinPrice: ptr(p.meanPrice * (1 - priceWindow)),
			MaxPrice: ptr(p.meanPrice * (1 + priceWindow)),
		}
		candidates, err := s.db.FindProperties(ctx, filter, "featured DESC, created_at DESC", candidatePool)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if exclude[c.ID] || !p.types[c.Type] {
				continue
			}
			out = append(out, c)
		}
		rank(out, p.prefers, p.meanPrice)
		if len(out) > limit {
			out = out[:limit]
		}
		for _, c := range out {
			exclude[c.ID] = true
		}
	}

	if len(out) < limit {
		fill, err := s.fallback(ctx, limit-len(out), exclude)
		if err != nil {
			return nil, err
		}
		out = append(out, fill...)
	}
	return out, nil
}

// fallback returns featured listings first, then the newest ones.
func (s *Service) fallback(ctx context.Context, n int, exclude map[uint]bool) ([]models.Property, error) {
	out := make([]models.Property, 0, n)
	featured := true
	for _, f := range []models.PropertyFilter{
		{Statuses: []models.PropertyStatus{models.PropertyStatusActive}, Featured: &featured},
		{Statuses: []models.PropertyStatus{models.PropertyStatusActive}},
	} {
		items, err := s.db.FindProperties(ctx, f, "created_at DESC, id DESC", n+len(exclude))
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if len(out) == n {
				return out, nil
			}
			if exclude[item.ID] {
				continue
			}
			exclude[item.ID] = true
			out = append(out, item)
		}
	}
	return out, nil
}

// Nearby lists active properties within radiusKm of the reference, closest first.
func (s *Service) Nearby(ctx context.Context, propertyID uint, radiusKm float64, limit int) ([]NearbyProperty, error) {
	limit = clampLimit(limit, DefaultLimit, MaxLimit)
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	if radiusKm > MaxRadiusKm {
		return nil, apperr.BadRequest("radius must not exceed %.0f km", MaxRadiusKm)
	}

	source, err := s.db.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if !source.HasCoordinates() {
		return nil, apperr.BadRequest("property %d has no coordinates", propertyID)
	}

	center := orb.Point{*source.Longitude, *source.Latitude}
	radius := radiusKm * 1000
	bound := geo.NewBoundAroundPoint(center, radius)

	filter := models.PropertyFilter{
		Statuses: []models.PropertyStatus{models.PropertyStatusActive},
		North:    ptr(bound.Top()),
		South:    ptr(bound.Bottom()),
		East:     ptr(bound.Right()),
		West:     ptr(bound.Left()),
	}
	candidates, err := s.db.FindProperties(ctx, filter, "", 0)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyProperty, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == source.ID || !c.HasCoordinates() {
			continue
		}
		d := geo.DistanceHaversine(center, orb.Point{*c.Longitude, *c.Latitude})
		if d > radius {
			continue
		}
		out = append(out, NearbyProperty{Property: c, DistanceKm: math.Round(d) / 1000})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func ptr[T any](v T) *T {
	return &v
}
