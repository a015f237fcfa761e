package models

import "time"

type PropertyType string

const (
	PropertyTypeApartment  PropertyType = "APARTMENT"
	PropertyTypeHouse      PropertyType = "HOUSE"
	PropertyTypeVilla      PropertyType = "VILLA"
	PropertyTypeCommercial PropertyType = "COMMERCIAL"
	PropertyTypeLand       PropertyType = "LAND"
)

var PropertyTypes = []PropertyType{
	PropertyTypeApartment,
	PropertyTypeHouse,
	PropertyTypeVilla,
	PropertyTypeCommercial,
	PropertyTypeLand,
}

func (t PropertyType) Valid() bool {
	for _, v := range PropertyTypes {
		if v == t {
			return true
		}
	}
	return false
}

type ListingType string

const (
	ListingTypeSale ListingType = "SALE"
	ListingTypeRent ListingType = "RENT"
)

func (t ListingType) Valid() bool {
	return t == ListingTypeSale || t == ListingTypeRent
}

type PropertyStatus string

const (
	PropertyStatusDraft    PropertyStatus = "DRAFT"
	PropertyStatusActive   PropertyStatus = "ACTIVE"
	PropertyStatusSold     PropertyStatus = "SOLD"
	PropertyStatusRented   PropertyStatus = "RENTED"
	PropertyStatusArchived PropertyStatus = "ARCHIVED"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyStatusDraft, PropertyStatusActive, PropertyStatusSold, PropertyStatusRented, PropertyStatusArchived:
		return true
	}
	return false
}

type Property struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `json:"description"`
	Type        PropertyType   `gorm:"type:varchar(20);not null;index" json:"type"`
	ListingType ListingType    `gorm:"type:varchar(10);not null" json:"listing_type"`
	Status      PropertyStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Price       float64        `gorm:"not null" json:"price"`
	Area        *float64       `json:"area"`
	Bedrooms    *int           `json:"bedrooms"`
	Bathrooms   *int           `json:"bathrooms"`
	City        string         `gorm:"index" json:"city"`
	District    string         `json:"district"`
	Address     string         `json:"address"`
	Latitude    *float64       `json:"latitude"`
	Longitude   *float64       `json:"longitude"`
	Featured    bool           `json:"featured"`
	ViewCount   int            `gorm:"not null;default:0" json:"view_count"`

	// ExternalRef identifies a listing imported from a partner feed
	ExternalRef *string `gorm:"type:varchar(128);uniqueIndex:idx_properties_agency_ref" json:"external_ref,omitempty"`
	AgencyID    *uint   `gorm:"index;uniqueIndex:idx_properties_agency_ref" json:"agency_id"`
	AgentID     *uint   `gorm:"index" json:"agent_id"`
	DeveloperID *uint   `gorm:"index" json:"developer_id"`
	ProjectID   *uint   `gorm:"index" json:"project_id"`

	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (p *Property) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// PricePerSqm returns 0 when the area is unknown.
func (p *Property) PricePerSqm() float64 {
	if p.Area == nil || *p.Area <= 0 {
		return 0
	}
	return p.Price / *p.Area
}

// PropertyView records a single detail page view, used for analytics.
type PropertyView struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PropertyID uint      `gorm:"not null;index" json:"property_id"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

type Favorite struct {
	UserID     uint      `gorm:"primaryKey" json:"user_id"`
	PropertyID uint      `gorm:"primaryKey" json:"property_id"`
	CreatedAt  time.Time `json:"created_at"`
	Property   *Property `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
}

// PropertyFilter narrows property searches. Zero values are ignored.
type PropertyFilter struct {
	City        string           `form:"city"`
	Type        PropertyType     `form:"type"`
	ListingType ListingType      `form:"listingType"`
	Statuses    []PropertyStatus `form:"-"`
	MinPrice    *float64         `form:"minPrice"`
	MaxPrice    *float64         `form:"maxPrice"`
	MinArea     *float64         `form:"minArea"`
	MaxArea     *float64         `form:"maxArea"`
	MinBedrooms *int             `form:"minBedrooms"`
	AgencyID    *uint            `form:"agencyId"`
	DeveloperID *uint            `form:"developerId"`
	ProjectID   *uint            `form:"projectId"`
	Featured    *bool            `form:"featured"`
	Query       string           `form:"q"`

	// Bounding box, all four must be set to apply
	North *float64 `form:"north"`
	South *float64 `form:"south"`
	East  *float64 `form:"east"`
	West  *float64 `form:"west"`

	Sort   string `form:"sort"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

func (f *PropertyFilter) HasBounds() bool {
	return f.North != nil && f.South != nil && f.East != nil && f.West != nil
}

type PropertyPage struct {
	Items  []Property `json:"items"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
