package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"estatehub/server/internal/models"
)

func (d *Database) CreateDeal(ctx context.Context, deal *models.Deal) error {
	if err := d.db.WithContext(ctx).Create(deal).Error; err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}

// GetDeal returns NotFound for deals of other agencies as well.
func (d *Database) GetDeal(ctx context.Context, agencyID, id uint) (*models.Deal, error) {
	var deal models.Deal
	err := d.db.WithContext(ctx).
		Preload("Lead").
		Preload("Property").
		Preload("Agent.User").
		Where("agency_id = ?", agencyID).
		First(&deal, id).Error
	if err != nil {
		return nil, notFound(err, "deal %d not found", id)
	}
	return &deal, nil
}

// HasOpenDeal reports whether the lead is linked to a deal that is not closed.
func (d *Database) HasOpenDeal(ctx context.Context, leadID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Deal{}).
		Where("lead_id = ? AND stage NOT IN ?", leadID, []models.Stage{models.StageClosedWon, models.StageClosedLost}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open deals: %w", err)
	}
	return count > 0, nil
}

// ListDeals returns the agency's deals ordered for the board.
func (d *Database) ListDeals(ctx context.Context, agencyID uint, filter models.DealFilter) ([]models.Deal, error) {
	q := d.db.WithContext(ctx).
		Preload("Lead").
		Preload("Agent.User").
		Where("agency_id = ?", agencyID)
	if filter.AgentID != nil {
		q = q.Where("agent_id = ?", *filter.AgentID)
	}
	if filter.PropertyID != nil {
		q = q.Where("property_id = ?", *filter.PropertyID)
	}
	if filter.Query != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(filter.Query)+"%")
	}

	var deals []models.Deal
	if err := q.Order("position").Order("id").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, nil
}

// DealIDsInStage returns the ids of a stage column in board order.
func (d *Database) DealIDsInStage(ctx context.Context, agencyID uint, stage models.Stage) ([]uint, error) {
	var ids []uint
	err := d.db.WithContext(ctx).Model(&models.Deal{}).
		Where("agency_id = ? AND stage = ?", agencyID, stage).
		Order("position").Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stage %s: %w", stage, err)
	}
	return ids, nil
}

// SaveStageOrder writes stage and position 0..n-1 for the given ids.
func (d *Database) SaveStageOrder(ctx context.Context, stage models.Stage, ids []uint) error {
	for i, id := range ids {
		err := d.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", id).
			UpdateColumns(map[string]any{"stage": stage, "position": i}).Error
		if err != nil {
			return fmt.Errorf("failed to save position of deal %d: %w", id, err)
		}
	}
	return nil
}

func (d *Database) UpdateDeal(ctx context.Context, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := d.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}
	return nil
}

func (d *Database) DeleteDeal(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("deal_id = ?", id).Delete(&models.Commission{}).Error; err != nil {
			return fmt.Errorf("failed to delete commission: %w", err)
		}
		if err := tx.Delete(&models.Deal{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete deal: %w", err)
		}
		return nil
	})
}

// UpsertCommission creates the deal's commission or refreshes a pending one.
// Paid commissions are left untouched.
func (d *Database) UpsertCommission(ctx context.Context, commission *models.Commission) error {
	var existing models.Commission
	err := d.db.WithContext(ctx).Where("deal_id = ?", commission.DealID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if commission.Status == "" {
			commission.Status = models.CommissionPending
		}
		if err := d.db.WithContext(ctx).Create(commission).Error; err != nil {
			return fmt.Errorf("failed to create commission: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load commission: %w", err)
	}
	if existing.Status != models.CommissionPending {
		*commission = existing
		return nil
	}

	err = d.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"member_id": commission.MemberID,
		"rate":      commission.Rate,
		"amount":    commission.Amount,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update commission: %w", err)
	}
	existing.MemberID = commission.MemberID
	existing.Rate = commission.Rate
	existing.Amount = commission.Amount
	*commission = existing
	return nil
}

func (d *Database) DeletePendingCommission(ctx context.Context, dealID uint) error {
	err := d.db.WithContext(ctx).
		Where("deal_id = ? AND status = ?", dealID, models.CommissionPending).
		Delete(&models.Commission{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete pending commission: %w", err)
	}
	return nil
}

func (d *Database) GetCommissionByDeal(ctx context.Context, dealID uint) (*models.Commission, error) {
	var commission models.Commission
	if err := d.db.WithContext(ctx).Where("deal_id = ?", dealID).First(&commission).Error; err != nil {
		return nil, notFound(err, "no commission for deal %d", dealID)
	}
	return &commission, nil
}

func (d *Database) ListCommissions(ctx context.Context, agencyID uint, status models.CommissionStatus, memberID *uint) ([]models.Commission, error) {
	q := d.db.WithContext(ctx).Preload("Deal").Where("agency_id = ?", agencyID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if memberID != nil {
		q = q.Where("member_id = ?", *memberID)
	}
	var commissions []models.Commission
	if err := q.Order("created_at DESC").Order("id DESC").Find(&commissions).Error; err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	return commissions, nil
}

func (d *Database) GetCommission(ctx context.Context, agencyID, id uint) (*models.Commission, error) {
	var commission models.Commission
	if err := d.db.WithContext(ctx).Where("agency_id = ?", agencyID).First(&commission, id).Error; err != nil {
		return nil, notFound(err, "commission %d not found", id)
	}
	return &commission, nil
}

func (d *Database) MarkCommissionPaid(ctx context.Context, id uint) error {
	err := d.db.WithContext(ctx).Model(&models.Commission{}).Where("id = ?", id).
		Updates(map[string]any{"status": models.CommissionPaid, "paid_at": d.now()}).Error
	if err != nil {
		return fmt.Errorf("failed to mark commission paid: %w", err)
	}
	return nil
}
