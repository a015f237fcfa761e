package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"estatehub/server/internal/models"
)

// ViewCount pairs a property with the number of views it received.
type ViewCount struct {
	PropertyID uint
	Cnt        int64
}

// CommissionTotal is the summed amount of commissions in one status.
type CommissionTotal struct {
	Status models.CommissionStatus
	Total  float64
}

// propertyScope joins rows of table to the properties they reference and
// restricts them to the tenant and optional project.
func propertyScope(q *gorm.DB, table string, tenant Tenant, projectID *uint) *gorm.DB {
	q = q.Joins("JOIN properties ON properties.id = " + table + ".property_id")
	q = tenant.scope(q, "properties")
	if projectID != nil {
		q = q.Where("properties.project_id = ?", *projectID)
	}
	return q
}

// CountProperties counts properties matching the filter.
func (d *Database) CountProperties(ctx context.Context, filter models.PropertyFilter) (int64, error) {
	var n int64
	err := applyPropertyFilter(d.db.WithContext(ctx).Model(&models.Property{}), filter).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return n, nil
}

// ViewTimes returns the timestamps of views in [from, to) on the tenant's properties.
func (d *Database) ViewTimes(ctx context.Context, tenant Tenant, projectID *uint, from, to time.Time) ([]time.Time, error) {
	var times []time.Time
	q := propertyScope(d.db.WithContext(ctx).Model(&models.PropertyView{}), "property_views", tenant, projectID)
	err := q.Where("property_views.created_at >= ? AND property_views.created_at < ?", from, to).
		Pluck("property_views.created_at", &times).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	return times, nil
}

// TopViewedProperties ranks the tenant's properties by views in [from, to).
func (d *Database) TopViewedProperties(ctx context.Context, tenant Tenant, projectID *uint, from, to time.Time, limit int) ([]ViewCount, error) {
	var rows []ViewCount
	q := propertyScope(d.db.WithContext(ctx).Model(&models.PropertyView{}), "property_views", tenant, projectID)
	err := q.Select("property_views.property_id AS property_id, COUNT(*) AS cnt").
		Where("property_views.created_at >= ? AND property_views.created_at < ?", from, to).
		Group("property_views.property_id").
		Order("cnt DESC").Order("property_views.property_id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank viewed properties: %w", err)
	}
	return rows, nil
}

// LeadsCreatedBetween returns the tenant's leads created in [from, to).
func (d *Database) LeadsCreatedBetween(ctx context.Context, tenant Tenant, projectID *uint, from, to time.Time) ([]models.Lead, error) {
	q := tenant.scope(d.db.WithContext(ctx).Model(&models.Lead{}), "leads").
		Where("created_at >= ? AND created_at < ?", from, to)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}
	var leads []models.Lead
	if err := q.Order("created_at").Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	return leads, nil
}

// ClosedDealsBetween returns deals closed in [from, to). Agency tenants match
// on the deal, developer tenants on the property the deal is about.
func (d *Database) ClosedDealsBetween(ctx context.Context, tenant Tenant, projectID *uint, from, to time.Time) ([]models.Deal, error) {
	q := d.db.WithContext(ctx).Model(&models.Deal{}).Select("deals.*")
	if tenant.DeveloperID != nil {
		q = propertyScope(q, "deals", tenant, projectID)
	} else {
		q = tenant.scope(q, "deals")
	}
	q = q.Where("deals.stage IN ? AND deals.closed_at >= ? AND deals.closed_at < ?",
		[]models.Stage{models.StageClosedWon, models.StageClosedLost}, from, to)

	var deals []models.Deal
	if err := q.Order("deals.closed_at").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to query closed deals: %w", err)
	}
	return deals, nil
}

// OpenDeals returns the agency's deals that are not closed.
func (d *Database) OpenDeals(ctx context.Context, agencyID uint) ([]models.Deal, error) {
	var deals []models.Deal
	err := d.db.WithContext(ctx).
		Where("agency_id = ? AND stage NOT IN ?", agencyID, []models.Stage{models.StageClosedWon, models.StageClosedLost}).
		Find(&deals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query open deals: %w", err)
	}
	return deals, nil
}

// DealStageCounts returns the number of the agency's deals per stage.
func (d *Database) DealStageCounts(ctx context.Context, agencyID uint) (map[models.Stage]int64, error) {
	var rows []struct {
		Stage models.Stage
		Cnt   int64
	}
	err := d.db.WithContext(ctx).Model(&models.Deal{}).
		Select("stage, COUNT(*) AS cnt").
		Where("agency_id = ?", agencyID).
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count deals by stage: %w", err)
	}
	counts := make(map[models.Stage]int64, len(rows))
	for _, r := range rows {
		counts[r.Stage] = r.Cnt
	}
	return counts, nil
}

func (d *Database) CommissionTotals(ctx context.Context, agencyID uint) ([]CommissionTotal, error) {
	var rows []CommissionTotal
	err := d.db.WithContext(ctx).Model(&models.Commission{}).
		Select("status, SUM(amount) AS total").
		Where("agency_id = ?", agencyID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum commissions: %w", err)
	}
	return rows, nil
}

// CommissionsByMember sums commission amounts per member for deals closed in [from, to).
func (d *Database) CommissionsByMember(ctx context.Context, agencyID uint, from, to time.Time) (map[uint]float64, error) {
	var rows []struct {
		MemberID uint
		Total    float64
	}
	err := d.db.WithContext(ctx).Model(&models.Commission{}).
		Select("commissions.member_id AS member_id, SUM(commissions.amount) AS total").
		Joins("JOIN deals ON deals.id = commissions.deal_id").
		Where("commissions.agency_id = ? AND commissions.member_id IS NOT NULL", agencyID).
		Where("deals.closed_at >= ? AND deals.closed_at < ?", from, to).
		Group("commissions.member_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum commissions by member: %w", err)
	}
	totals := make(map[uint]float64, len(rows))
	for _, r := range rows {
		totals[r.MemberID] = r.Total
	}
	return totals, nil
}
