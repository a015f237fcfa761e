package analytics

import "estatehub/server/internal/models"

type SourceCount struct {
	Source models.LeadSource `json:"source"`
	Count  int64             `json:"count"`
}

type StatusCount struct {
	Status models.LeadStatus `json:"status"`
	Count  int64             `json:"count"`
}

type StageCount struct {
	Stage models.Stage `json:"stage"`
	Count int64        `json:"count"`
}

type TypeCount struct {
	Type  models.PropertyType `json:"type"`
	Count int64               `json:"count"`
}

// DailyPoint is one day of the leads/views series.
type DailyPoint struct {
	Date  string `json:"date"`
	Leads int64  `json:"leads"`
	Views int64  `json:"views"`
}

type TopProperty struct {
	ID    uint    `json:"id"`
	Title string  `json:"title"`
	City  string  `json:"city"`
	Price float64 `json:"price"`
	Views int64   `json:"views"`
}

type DeveloperTotals struct {
	Properties     int64   `json:"properties"`
	ActiveListings int64   `json:"active_listings"`
	Views          int64   `json:"views"`
	Leads          int64   `json:"leads"`
	ConvertedLeads int64   `json:"converted_leads"`
	ConversionRate float64 `json:"conversion_rate"`
	UnitsSold      int64   `json:"units_sold"`
	Revenue        float64 `json:"revenue"`
}

type DeveloperTrends struct {
	Views      float64 `json:"views"`
	Leads      float64 `json:"leads"`
	Conversion float64 `json:"conversion"`
	Revenue    float64 `json:"revenue"`
}

type DeveloperOverview struct {
	Days          int             `json:"days"`
	ProjectID     *uint           `json:"project_id,omitempty"`
	Totals        DeveloperTotals `json:"totals"`
	Trends        DeveloperTrends `json:"trends"`
	LeadsBySource []SourceCount   `json:"leads_by_source"`
	Funnel        []StatusCount   `json:"funnel"`
	Daily         []DailyPoint    `json:"daily"`
	TopProperties []TopProperty   `json:"top_properties"`
}

type AgencyTotals struct {
	Listings           int64   `json:"listings"`
	ActiveListings     int64   `json:"active_listings"`
	Views              int64   `json:"views"`
	Leads              int64   `json:"leads"`
	ConvertedLeads     int64   `json:"converted_leads"`
	ConversionRate     float64 `json:"conversion_rate"`
	OpenDeals          int64   `json:"open_deals"`
	OpenPipelineValue  float64 `json:"open_pipeline_value"`
	WonDeals           int64   `json:"won_deals"`
	WonValue           float64 `json:"won_value"`
	LostDeals          int64   `json:"lost_deals"`
	WinRate            float64 `json:"win_rate"`
	CommissionsPending float64 `json:"commissions_pending"`
	CommissionsPaid    float64 `json:"commissions_paid"`
}

type AgencyTrends struct {
	Views      float64 `json:"views"`
	Leads      float64 `json:"leads"`
	Conversion float64 `json:"conversion"`
	WonValue   float64 `json:"won_value"`
}

type AgencyOverview struct {
	Days          int           `json:"days"`
	Totals        AgencyTotals  `json:"totals"`
	Trends        AgencyTrends  `json:"trends"`
	LeadsBySource []SourceCount `json:"leads_by_source"`
	DealsByStage  []StageCount  `json:"deals_by_stage"`
	Daily         []DailyPoint  `json:"daily"`
}

type AgentStats struct {
	MemberID         uint    `json:"member_id"`
	Name             string  `json:"name"`
	LeadsAssigned    int64   `json:"leads_assigned"`
	LeadsConverted   int64   `json:"leads_converted"`
	DealsWon         int64   `json:"deals_won"`
	Revenue          float64 `json:"revenue"`
	CommissionEarned float64 `json:"commission_earned"`
	ConversionRate   float64 `json:"conversion_rate"`
}

type MarketStats struct {
	City              string             `json:"city,omitempty"`
	ListingType       models.ListingType `json:"listing_type,omitempty"`
	ActiveListings    int64              `json:"active_listings"`
	AveragePrice      float64            `json:"average_price"`
	MedianPrice       float64            `json:"median_price"`
	AveragePricePerM2 float64            `json:"average_price_per_m2"`
	ByType            []TypeCount        `json:"by_type"`
}
