package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestIsLeadAllowed(t *testing.T) {
	lead := &Lead{Source: LeadSourcePortal}
	lisbon := &Property{City: "Lisbon", Price: 250000}

	tests := []struct {
		name     string
		filters  *NotificationFilters
		lead     *Lead
		property *Property
		want     bool
	}{
		{"no filters", nil, lead, lisbon, true},
		{"empty filters", &NotificationFilters{}, lead, nil, true},
		{"source allowed", &NotificationFilters{Sources: []LeadSource{LeadSourcePortal}}, lead, nil, true},
		{"source rejected", &NotificationFilters{Sources: []LeadSource{LeadSourceReferral}}, lead, lisbon, false},
		{"below min price", &NotificationFilters{MinPrice: f64(300000)}, lead, lisbon, false},
		{"above max price", &NotificationFilters{MaxPrice: f64(200000)}, lead, lisbon, false},
		{"within price range", &NotificationFilters{MinPrice: f64(200000), MaxPrice: f64(300000)}, lead, lisbon, true},
		{"city matches case insensitively", &NotificationFilters{Cities: []string{"LISBON"}}, lead, lisbon, true},
		{"city rejected", &NotificationFilters{Cities: []string{"Porto"}}, lead, lisbon, false},
		{"price filter without property", &NotificationFilters{MinPrice: f64(1)}, lead, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.IsLeadAllowed(tt.lead, tt.property))
		})
	}
}

func TestPropertyHelpers(t *testing.T) {
	p := &Property{Price: 300000}
	assert.Zero(t, p.PricePerSqm())
	assert.False(t, p.HasCoordinates())

	p.Area = f64(0)
	assert.Zero(t, p.PricePerSqm())

	p.Area = f64(75)
	assert.Equal(t, 4000.0, p.PricePerSqm())

	p.Latitude, p.Longitude = f64(38.7), f64(-9.1)
	assert.True(t, p.HasCoordinates())

	filter := PropertyFilter{North: f64(1), South: f64(0), East: f64(1)}
	assert.False(t, filter.HasBounds())
	filter.West = f64(0)
	assert.True(t, filter.HasBounds())
}

func TestEnumValidation(t *testing.T) {
	assert.True(t, StageNegotiation.Valid())
	assert.False(t, Stage("WON").Valid())
	assert.True(t, StageClosedWon.Closed())
	assert.True(t, StageClosedLost.Closed())
	assert.False(t, StageContract.Closed())

	assert.True(t, LeadSourceWalkIn.Valid())
	assert.False(t, LeadSource("FAX").Valid())
	assert.True(t, LeadStatusLost.Valid())
	assert.False(t, LeadStatus("").Valid())

	assert.True(t, PropertyTypeVilla.Valid())
	assert.False(t, PropertyType("castle").Valid())
	assert.True(t, ListingTypeRent.Valid())
	assert.False(t, ListingType("LEASE").Valid())
	assert.True(t, PropertyStatusArchived.Valid())
	assert.True(t, ProjectStatusUnderConstruction.Valid())
	assert.True(t, RoleAgencyAdmin.Valid())
	assert.False(t, Role("ROOT").Valid())
}

func TestMemberDisplayName(t *testing.T) {
	m := &Member{}
	assert.Empty(t, m.DisplayName())
	m.User = &User{Email: "agent@example.com"}
	assert.Equal(t, "agent@example.com", m.DisplayName())
	m.User.Name = "Joana"
	assert.Equal(t, "Joana", m.DisplayName())
}
