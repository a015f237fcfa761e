package models

import "strings"

// NotificationFilters decide which leads are forwarded to Telegram
type NotificationFilters struct {
	MinPrice *float64     `json:"min_price" yaml:"min_price"`
	MaxPrice *float64     `json:"max_price" yaml:"max_price"`
	Cities   []string     `json:"cities" yaml:"cities"`
	Sources  []LeadSource `json:"sources" yaml:"sources"`
}

// IsLeadAllowed checks if a lead (and the property it asks about) matches the filter criteria
func (f *NotificationFilters) IsLeadAllowed(lead *Lead, property *Property) bool {
	if f == nil {
		return true // No filters means allow all
	}

	if len(f.Sources) > 0 {
		allowed := false
		for _, s := range f.Sources {
			if s == lead.Source {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if property == nil {
		// Price and city filters need a property
		return f.MinPrice == nil && f.MaxPrice == nil && len(f.Cities) == 0
	}

	if f.MinPrice != nil && property.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && property.Price > *f.MaxPrice {
		return false
	}

	if len(f.Cities) > 0 {
		allowed := false
		for _, city := range f.Cities {
			if strings.EqualFold(city, property.City) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}
