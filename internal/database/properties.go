package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estatehub/server/internal/models"
)

func (d *Database) CreateProperty(ctx context.Context, property *models.Property) error {
	if err := d.db.WithContext(ctx).Create(property).Error; err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}
	return nil
}

func (d *Database) GetProperty(ctx context.Context, id uint) (*models.Property, error) {
	var property models.Property
	if err := d.db.WithContext(ctx).First(&property, id).Error; err != nil {
		return nil, notFound(err, "property %d not found", id)
	}
	return &property, nil
}

func (d *Database) GetProperties(ctx context.Context, ids []uint) ([]models.Property, error) {
	var properties []models.Property
	if len(ids) == 0 {
		return properties, nil
	}
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&properties).Error; err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}
	return properties, nil
}

func (d *Database) UpdateProperty(ctx context.Context, id uint, updates map[string]any) (*models.Property, error) {
	if len(updates) > 0 {
		res := d.db.WithContext(ctx).Model(&models.Property{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update property: %w", res.Error)
		}
	}
	return d.GetProperty(ctx, id)
}

func (d *Database) SetPropertyStatus(ctx context.Context, id uint, status models.PropertyStatus) error {
	err := d.db.WithContext(ctx).Model(&models.Property{}).Where("id = ?", id).Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to set property status: %w", err)
	}
	return nil
}

// SearchProperties applies the filter and returns one page plus the total count.
func (d *Database) SearchProperties(ctx context.Context, filter models.PropertyFilter) (*models.PropertyPage, error) {
	limit, offset := paginate(filter.Limit, filter.Offset, 20, 100)

	q := applyPropertyFilter(d.db.WithContext(ctx).Model(&models.Property{}), filter).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}

	var items []models.Property
	err := q.Order(propertyOrder(filter.Sort)).Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}

	return &models.PropertyPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func applyPropertyFilter(q *gorm.DB, f models.PropertyFilter) *gorm.DB {
	if f.City != "" {
		q = q.Where("LOWER(city) = LOWER(?)", f.City)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.ListingType != "" {
		q = q.Where("listing_type = ?", f.ListingType)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.MinArea != nil {
		q = q.Where("area >= ?", *f.MinArea)
	}
	if f.MaxArea != nil {
		q = q.Where("area <= ?", *f.MaxArea)
	}
	if f.MinBedrooms != nil {
		q = q.Where("bedrooms >= ?", *f.MinBedrooms)
	}
	if f.AgencyID != nil {
		q = q.Where("agency_id = ?", *f.AgencyID)
	}
	if f.DeveloperID != nil {
		q = q.Where("developer_id = ?", *f.DeveloperID)
	}
	if f.ProjectID != nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	if f.Featured != nil {
		q = q.Where("featured = ?", *f.Featured)
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(address) LIKE ? OR LOWER(district) LIKE ?", like, like, like)
	}
	if f.HasBounds() {
		q = q.Where("latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?", *f.South, *f.North, *f.West, *f.East)
	}
	return q
}

func propertyOrder(sort string) string {
	switch sort {
	case "price_asc":
		return "price ASC"
	case "price_desc":
		return "price DESC"
	case "area_desc":
		return "area DESC"
	case "views":
		return "view_count DESC"
	case "oldest":
		return "created_at ASC"
	default:
		return "featured DESC, created_at DESC"
	}
}

// FindProperties returns every match without pagination, ordered by orderBy.
func (d *Database) FindProperties(ctx context.Context, filter models.PropertyFilter, orderBy string, limit int) ([]models.Property, error) {
	q := applyPropertyFilter(d.db.WithContext(ctx).Model(&models.Property{}), filter)
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []models.Property
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to find properties: %w", err)
	}
	return items, nil
}

// RecordPropertyView stores a view and bumps the denormalised counter.
func (d *Database) RecordPropertyView(ctx context.Context, propertyID uint, userID *uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.PropertyView{PropertyID: propertyID, UserID: userID}).Error; err != nil {
			return fmt.Errorf("failed to record view: %w", err)
		}
		err := tx.Model(&models.Property{}).Where("id = ?", propertyID).
			UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
		if err != nil {
			return fmt.Errorf("failed to increment view count: %w", err)
		}
		return nil
	})
}

// RecentlyViewedPropertyIDs returns distinct property ids viewed by the user, newest first.
func (d *Database) RecentlyViewedPropertyIDs(ctx context.Context, userID uint, limit int) ([]uint, error) {
	var ids []uint
	err := d.db.WithContext(ctx).Model(&models.PropertyView{}).
		Where("user_id = ?", userID).
		Group("property_id").
		Order("MAX(created_at) DESC").
		Limit(limit).
		Pluck("property_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent views: %w", err)
	}
	return ids, nil
}

func (d *Database) AddFavorite(ctx context.Context, userID, propertyID uint) error {
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Favorite{UserID: userID, PropertyID: propertyID}).Error
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

func (d *Database) RemoveFavorite(ctx context.Context, userID, propertyID uint) error {
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND property_id = ?", userID, propertyID).
		Delete(&models.Favorite{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

func (d *Database) ListFavorites(ctx context.Context, userID uint) ([]models.Favorite, error) {
	var favorites []models.Favorite
	err := d.db.WithContext(ctx).Preload("Property").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&favorites).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return favorites, nil
}

func (d *Database) FavoritePropertyIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := d.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Pluck("property_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorite ids: %w", err)
	}
	return ids, nil
}

// ArchiveExpiredListings archives active listings whose expiry is before now.
func (d *Database) ArchiveExpiredListings(ctx context.Context, now time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Model(&models.Property{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.PropertyStatusActive, now).
		Update("status", models.PropertyStatusArchived)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to archive expired listings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (d *Database) PropertiesMissingCoordinates(ctx context.Context, limit int) ([]models.Property, error) {
	var properties []models.Property
	err := d.db.WithContext(ctx).
		Where("(latitude IS NULL OR longitude IS NULL) AND address <> '' AND city <> ''").
		Order("id").
		Limit(limit).
		Find(&properties).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query properties without coordinates: %w", err)
	}
	return properties, nil
}

func (d *Database) SetCoordinates(ctx context.Context, id uint, lat, lng float64) error {
	err := d.db.WithContext(ctx).Model(&models.Property{}).Where("id = ?", id).
		Updates(map[string]any{"latitude": lat, "longitude": lng}).Error
	if err != nil {
		return fmt.Errorf("failed to update coordinates: %w", err)
	}
	return nil
}

// UpsertProperties inserts imported listings or refreshes the ones already
// known by (agency_id, external_ref).
func UpsertProperties(tx *gorm.DB, properties []*models.Property) error {
	if len(properties) == 0 {
		return nil
	}
	for _, p := range properties {
		if p.AgencyID == nil || p.ExternalRef == nil {
			return fmt.Errorf("imported property %q has no agency or external reference", p.Title)
		}
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "agency_id"}, {Name: "external_ref"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "type", "listing_type", "price", "area", "bedrooms",
			"city", "district", "address", "latitude", "longitude", "updated_at",
		}),
	}).Create(&properties).Error
}
