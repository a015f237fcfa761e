package analytics

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/cache"
	"estatehub/server/internal/database"
	"estatehub/server/internal/geometry"
	"estatehub/server/internal/metrics"
	"estatehub/server/internal/models"
)

const topPropertiesLimit = 5

type Service struct {
	db     *database.Database
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewService builds the analytics service. A nil cache disables caching.
func NewService(db *database.Database, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{db: db, cache: c, ttl: ttl, logger: logger, now: time.Now}
}

// cached returns the value stored under key or computes and stores it.
// Cache failures are logged and never fail the request.
func cached[T any](ctx context.Context, s *Service, key string, compute func() (*T, error)) (*T, error) {
	var hit T
	found, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Analytics cache read failed")
	}
	if found {
		metrics.RecordCacheLookup(true)
		return &hit, nil
	}
	metrics.RecordCacheLookup(false)

	v, err := compute()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Analytics cache write failed")
	}
	return v, nil
}

// DeveloperOverview summarises a developer, or one of its projects, over the window.
func (s *Service) DeveloperOverview(ctx context.Context, developerID uint, days int, projectID *uint) (*DeveloperOverview, error) {
	if days < 1 || days > MaxDays {
		return nil, apperr.BadRequest("days must be between 1 and %d", MaxDays)
	}
	if projectID != nil {
		project, err := s.db.GetProject(ctx, *projectID)
		if err != nil {
			return nil, err
		}
		if project.DeveloperID != developerID {
			return nil, apperr.Forbidden("project %d belongs to another developer", *projectID)
		}
	}

	project := "all"
	if projectID != nil {
		project = strconv.FormatUint(uint64(*projectID), 10)
	}
	w := NewWindow(s.now(), days)
	key := cache.Key("analytics", "developer", developerID, "overview", days, project, w.From.Format(dateLayout))

	return cached(ctx, s, key, func() (*DeveloperOverview, error) {
		return s.developerOverview(ctx, developerID, w, projectID)
	})
}

func (s *Service) developerOverview(ctx context.Context, developerID uint, w Window, projectID *uint) (*DeveloperOverview, error) {
	tenant := database.DeveloperTenant(developerID)
	base := models.PropertyFilter{DeveloperID: &developerID, ProjectID: projectID}
	active := base
	active.Statuses = []models.PropertyStatus{models.PropertyStatusActive}

	var (
		properties, activeListings int64
		views, prevViews           []time.Time
		leads, prevLeads           []models.Lead
		deals, prevDeals           []models.Deal
		top                        []database.ViewCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		properties, err = s.db.CountProperties(gctx, base)
		return err
	})
	g.Go(func() (err error) {
		activeListings, err = s.db.CountProperties(gctx, active)
		return err
	})
	g.Go(func() (err error) {
		views, err = s.db.ViewTimes(gctx, tenant, projectID, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		prevViews, err = s.db.ViewTimes(gctx, tenant, projectID, w.PrevFrom, w.From)
		return err
	})
	g.Go(func() (err error) {
		leads, err = s.db.LeadsCreatedBetween(gctx, tenant, projectID, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		prevLeads, err = s.db.LeadsCreatedBetween(gctx, tenant, projectID, w.PrevFrom, w.From)
		return err
	})
	g.Go(func() (err error) {
		deals, err = s.db.ClosedDealsBetween(gctx, tenant, projectID, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		prevDeals, err = s.db.ClosedDealsBetween(gctx, tenant, projectID, w.PrevFrom, w.From)
		return err
	})
	g.Go(func() (err error) {
		top, err = s.db.TopViewedProperties(gctx, tenant, projectID, w.From, w.To, topPropertiesLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	topProperties, err := s.topProperties(ctx, top)
	if err != nil {
		return nil, err
	}

	converted := countStatus(leads, models.LeadStatusConverted)
	prevConverted := countStatus(prevLeads, models.LeadStatusConverted)
	wonCount, revenue, _ := closedSummary(deals)
	_, prevRevenue, _ := closedSummary(prevDeals)

	conversion := Rate(float64(converted), float64(len(leads)))
	prevConversion := Rate(float64(prevConverted), float64(len(prevLeads)))

	return &DeveloperOverview{
		Days:      w.Days,
		ProjectID: projectID,
		Totals: DeveloperTotals{
			Properties:     properties,
			ActiveListings: activeListings,
			Views:          int64(len(views)),
			Leads:          int64(len(leads)),
			ConvertedLeads: converted,
			ConversionRate: conversion,
			UnitsSold:      wonCount,
			Revenue:        round2(revenue),
		},
		Trends: DeveloperTrends{
			Views:      Trend(float64(len(views)), float64(len(prevViews))),
			Leads:      Trend(float64(len(leads)), float64(len(prevLeads))),
			Conversion: Trend(conversion, prevConversion),
			Revenue:    Trend(revenue, prevRevenue),
		},
		LeadsBySource: leadsBySource(leads),
		Funnel:        funnel(leads),
		Daily:         dailySeries(w, leads, views),
		TopProperties: topProperties,
	}, nil
}

// AgencyOverview summarises an agency's listings, leads and pipeline.
func (s *Service) AgencyOverview(ctx context.Context, agencyID uint, days int) (*AgencyOverview, error) {
	if days < 1 || days > MaxDays {
		return nil, apperr.BadRequest("days must be between 1 and %d", MaxDays)
	}
	w := NewWindow(s.now(), days)
	key := cache.Key("analytics", "agency", agencyID, "overview", days, w.From.Format(dateLayout))

	return cached(ctx, s, key, func() (*AgencyOverview, error) {
		return s.agencyOverview(ctx, agencyID, w)
	})
}

func (s *Service) agencyOverview(ctx context.Context, agencyID uint, w Window) (*AgencyOverview, error) {
	tenant := database.AgencyTenant(agencyID)
	base := models.PropertyFilter{AgencyID: &agencyID}
	active := base
	active.Statuses = []models.PropertyStatus{models.PropertyStatusActive}

	var (
		listings, activeListings int64
		views, prevViews         []time.Time
		leads, prevLeads         []models.Lead
		deals, prevDeals         []models.Deal
		open                     []models.Deal
		stages                   map[models.Stage]int64
		commissions              []database.CommissionTotal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		listings, err = s.db.CountProperties(gctx, base)
		return err
	})
	g.Go(func() (err error) {
		activeListings, err = s.db.CountProperties(gctx, active)
		return err
	})
	g.Go(func() (err error) {
		views, err = s.db.ViewTimes(gctx, tenant, nil, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		prevViews, err = s.db.ViewTimes(gctx, tenant, nil, w.PrevFrom, w.From)
		return err
	})
	g.Go(func() (err error) {
		leads, err = s.db.LeadsCreatedBetween(gctx, tenant, nil, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		prevLeads, err = s.db.LeadsCreatedBetween(gctx, tenant, nil, w.PrevFrom, w.From)
		return err
	})
	g.Go(func() (err error) {
		deals, err = s.db.ClosedDealsBetween(gctx, tenant, nil, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		prevDeals, err = s.db.ClosedDealsBetween(gctx, tenant, nil, w.PrevFrom, w.From)
		return err
	})
	g.Go(func() (err error) {
		open, err = s.db.OpenDeals(gctx, agencyID)
		return err
	})
	g.Go(func() (err error) {
		stages, err = s.db.DealStageCounts(gctx, agencyID)
		return err
	})
	g.Go(func() (err error) {
		commissions, err = s.db.CommissionTotals(gctx, agencyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	converted := countStatus(leads, models.LeadStatusConverted)
	prevConverted := countStatus(prevLeads, models.LeadStatusConverted)
	conversion := Rate(float64(converted), float64(len(leads)))
	prevConversion := Rate(float64(prevConverted), float64(len(prevLeads)))

	won, wonValue, lost := closedSummary(deals)
	_, prevWonValue, _ := closedSummary(prevDeals)

	var openValue float64
	for _, d := range open {
		openValue += d.Value
	}

	totals := AgencyTotals{
		Listings:          listings,
		ActiveListings:    activeListings,
		Views:             int64(len(views)),
		Leads:             int64(len(leads)),
		ConvertedLeads:    converted,
		ConversionRate:    conversion,
		OpenDeals:         int64(len(open)),
		OpenPipelineValue: round2(openValue),
		WonDeals:          won,
		WonValue:          round2(wonValue),
		LostDeals:         lost,
		WinRate:           Rate(float64(won), float64(won+lost)),
	}
	for _, c := range commissions {
		switch c.Status {
		case models.CommissionPending:
			totals.CommissionsPending = round2(c.Total)
		case models.CommissionPaid:
			totals.CommissionsPaid = round2(c.Total)
		}
	}

	byStage := make([]StageCount, 0, len(models.Stages))
	for _, stage := range models.Stages {
		byStage = append(byStage, StageCount{Stage: stage, Count: stages[stage]})
	}

	return &AgencyOverview{
		Days:   w.Days,
		Totals: totals,
		Trends: AgencyTrends{
			Views:      Trend(float64(len(views)), float64(len(prevViews))),
			Leads:      Trend(float64(len(leads)), float64(len(prevLeads))),
			Conversion: Trend(conversion, prevConversion),
			WonValue:   Trend(wonValue, prevWonValue),
		},
		LeadsBySource: leadsBySource(leads),
		DealsByStage:  byStage,
		Daily:         dailySeries(w, leads, views),
	}, nil
}

// AgentPerformance ranks active members by revenue, then name.
func (s *Service) AgentPerformance(ctx context.Context, agencyID uint, days int) ([]AgentStats, error) {
	if days < 1 || days > MaxDays {
		return nil, apperr.BadRequest("days must be between 1 and %d", MaxDays)
	}
	w := NewWindow(s.now(), days)
	key := cache.Key("analytics", "agency", agencyID, "agents", days, w.From.Format(dateLayout))

	stats, err := cached(ctx, s, key, func() (*[]AgentStats, error) {
		stats, err := s.agentPerformance(ctx, agencyID, w)
		return &stats, err
	})
	if err != nil {
		return nil, err
	}
	return *stats, nil
}

func (s *Service) agentPerformance(ctx context.Context, agencyID uint, w Window) ([]AgentStats, error) {
	tenant := database.AgencyTenant(agencyID)

	var (
		members    []models.Member
		leads      []models.Lead
		deals      []models.Deal
		commission map[uint]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		members, err = s.db.ListMembers(gctx, agencyID, true)
		return err
	})
	g.Go(func() (err error) {
		leads, err = s.db.LeadsCreatedBetween(gctx, tenant, nil, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		deals, err = s.db.ClosedDealsBetween(gctx, tenant, nil, w.From, w.To)
		return err
	})
	g.Go(func() (err error) {
		commission, err = s.db.CommissionsByMember(gctx, agencyID, w.From, w.To)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byMember := make(map[uint]*AgentStats, len(members))
	stats := make([]AgentStats, len(members))
	for i, m := range members {
		stats[i] = AgentStats{MemberID: m.ID, Name: m.DisplayName()}
		byMember[m.ID] = &stats[i]
	}

	for _, l := range leads {
		if l.AssigneeID == nil {
			continue
		}
		if st, ok := byMember[*l.AssigneeID]; ok {
			st.LeadsAssigned++
			if l.Status == models.LeadStatusConverted {
				st.LeadsConverted++
			}
		}
	}
	for _, d := range deals {
		if d.AgentID == nil || d.Stage != models.StageClosedWon {
			continue
		}
		if st, ok := byMember[*d.AgentID]; ok {
			st.DealsWon++
			st.Revenue += d.Value
		}
	}
	for i := range stats {
		stats[i].Revenue = round2(stats[i].Revenue)
		stats[i].CommissionEarned = round2(commission[stats[i].MemberID])
		stats[i].ConversionRate = Rate(float64(stats[i].LeadsConverted), float64(stats[i].LeadsAssigned))
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Revenue != stats[j].Revenue {
			return stats[i].Revenue > stats[j].Revenue
		}
		return strings.ToLower(stats[i].Name) < strings.ToLower(stats[j].Name)
	})
	return stats, nil
}

// MarketStats describes active listings, optionally for one city and listing type.
func (s *Service) MarketStats(ctx context.Context, city string, listingType models.ListingType) (*MarketStats, error) {
	city = strings.TrimSpace(city)
	if listingType != "" && !listingType.Valid() {
		return nil, apperr.BadRequest("unknown listing type %q", listingType)
	}
	key := cache.Key("analytics", "market", strings.ToLower(city), listingType)

	return cached(ctx, s, key, func() (*MarketStats, error) {
		filter := models.PropertyFilter{
			City:        city,
			ListingType: listingType,
			Statuses:    []models.PropertyStatus{models.PropertyStatusActive},
		}
		properties, err := s.db.FindProperties(ctx, filter, "price", 0)
		if err != nil {
			return nil, err
		}
		return marketStats(city, listingType, properties), nil
	})
}

// MarketDistricts maps the active listings of a city to district polygons.
func (s *Service) MarketDistricts(ctx context.Context, city string) (*geojson.FeatureCollection, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, apperr.BadRequest("city is required")
	}
	key := cache.Key("analytics", "districts", strings.ToLower(city))

	return cached(ctx, s, key, func() (*geojson.FeatureCollection, error) {
		filter := models.PropertyFilter{
			City:     city,
			Statuses: []models.PropertyStatus{models.PropertyStatusActive},
		}
		properties, err := s.db.FindProperties(ctx, filter, "id", 0)
		if err != nil {
			return nil, err
		}
		return geometry.DistrictHulls(properties, geometry.DefaultBuffer), nil
	})
}

func marketStats(city string, listingType models.ListingType, properties []models.Property) *MarketStats {
	stats := &MarketStats{
		City:           city,
		ListingType:    listingType,
		ActiveListings: int64(len(properties)),
		ByType:         make([]TypeCount, 0, len(models.PropertyTypes)),
	}

	counts := make(map[models.PropertyType]int64)
	prices := make([]float64, 0, len(properties))
	var sum, perSqmSum float64
	var perSqmCount int
	for i := range properties {
		p := &properties[i]
		counts[p.Type]++
		prices = append(prices, p.Price)
		sum += p.Price
		if v := p.PricePerSqm(); v > 0 {
			perSqmSum += v
			perSqmCount++
		}
	}
	for _, t := range models.PropertyTypes {
		stats.ByType = append(stats.ByType, TypeCount{Type: t, Count: counts[t]})
	}
	if len(prices) == 0 {
		return stats
	}

	stats.AveragePrice = round2(sum / float64(len(prices)))
	stats.MedianPrice = round2(median(prices))
	if perSqmCount > 0 {
		stats.AveragePricePerM2 = round2(perSqmSum / float64(perSqmCount))
	}
	return stats
}

func (s *Service) topProperties(ctx context.Context, top []database.ViewCount) ([]TopProperty, error) {
	out := make([]TopProperty, 0, len(top))
	if len(top) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(top))
	for _, t := range top {
		ids = append(ids, t.PropertyID)
	}
	properties, err := s.db.GetProperties(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Property, len(properties))
	for i := range properties {
		byID[properties[i].ID] = &properties[i]
	}
	for _, t := range top {
		p, ok := byID[t.PropertyID]
		if !ok {
			continue
		}
		out = append(out, TopProperty{ID: p.ID, Title: p.Title, City: p.City, Price: p.Price, Views: t.Cnt})
	}
	return out, nil
}
