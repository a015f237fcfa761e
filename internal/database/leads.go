package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"estatehub/server/internal/models"
)

func (d *Database) CreateLead(ctx context.Context, lead *models.Lead) error {
	if err := d.db.WithContext(ctx).Create(lead).Error; err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// GetLead returns the lead only when it belongs to the tenant.
func (d *Database) GetLead(ctx context.Context, tenant Tenant, id uint) (*models.Lead, error) {
	var lead models.Lead
	err := tenant.scope(d.db.WithContext(ctx), "leads").First(&lead, id).Error
	if err != nil {
		return nil, notFound(err, "lead %d not found", id)
	}
	return &lead, nil
}

func (d *Database) ListLeads(ctx context.Context, tenant Tenant, filter models.LeadFilter) ([]models.Lead, int64, error) {
	limit, offset := paginate(filter.Limit, filter.Offset, 50, 200)

	q := tenant.scope(d.db.WithContext(ctx).Model(&models.Lead{}), "leads")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.AssigneeID != nil {
		q = q.Where("assignee_id = ?", *filter.AssigneeID)
	}
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		// inclusive end date
		q = q.Where("created_at < ?", filter.To.UTC().AddDate(0, 0, 1))
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	var leads []models.Lead
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&leads).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, total, nil
}

func (d *Database) UpdateLead(ctx context.Context, tenant Tenant, id uint, updates map[string]any) (*models.Lead, error) {
	if _, err := d.GetLead(ctx, tenant, id); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := d.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update lead: %w", err)
		}
	}
	return d.GetLead(ctx, tenant, id)
}

func (d *Database) SetLeadStatus(ctx context.Context, id uint, status models.LeadStatus) error {
	err := d.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", id).Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to set lead status: %w", err)
	}
	return nil
}

// StaleLeads returns leads still NEW that were created before cutoff.
func (d *Database) StaleLeads(ctx context.Context, cutoff time.Time) ([]models.Lead, error) {
	var leads []models.Lead
	err := d.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.LeadStatusNew, cutoff).
		Order("created_at").
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stale leads: %w", err)
	}
	return leads, nil
}
