package models

import "time"

// Stage is a deal pipeline column.
type Stage string

const (
	StageNew         Stage = "NEW"
	StageContacted   Stage = "CONTACTED"
	StageQualified   Stage = "QUALIFIED"
	StageViewing     Stage = "VIEWING"
	StageOffer       Stage = "OFFER"
	StageNegotiation Stage = "NEGOTIATION"
	StageContract    Stage = "CONTRACT"
	StageClosedWon   Stage = "CLOSED_WON"
	StageClosedLost  Stage = "CLOSED_LOST"
)

// Stages lists the pipeline in board order.
var Stages = []Stage{
	StageNew,
	StageContacted,
	StageQualified,
	StageViewing,
	StageOffer,
	StageNegotiation,
	StageContract,
	StageClosedWon,
	StageClosedLost,
}

func (s Stage) Valid() bool {
	for _, v := range Stages {
		if v == s {
			return true
		}
	}
	return false
}

func (s Stage) Closed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

type Deal struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	AgencyID         uint       `gorm:"not null;index" json:"agency_id"`
	LeadID           *uint      `gorm:"index" json:"lead_id"`
	PropertyID       *uint      `gorm:"index" json:"property_id"`
	AgentID          *uint      `gorm:"index" json:"agent_id"`
	Title            string     `gorm:"not null" json:"title"`
	Value            float64    `gorm:"not null" json:"value"`
	Stage            Stage      `gorm:"type:varchar(20);not null;index" json:"stage"`
	Position         int        `gorm:"not null;default:0" json:"position"`
	CommissionRate   float64    `gorm:"not null;default:0" json:"commission_rate"`
	CommissionAmount float64    `gorm:"not null;default:0" json:"commission_amount"`
	ClosedAt         *time.Time `gorm:"index" json:"closed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Lead     *Lead     `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
	Property *Property `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	Agent    *Member   `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
}

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "PENDING"
	CommissionPaid    CommissionStatus = "PAID"
)

// Commission is the agent share of a won deal.
type Commission struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	DealID    uint             `gorm:"not null;uniqueIndex" json:"deal_id"`
	AgencyID  uint             `gorm:"not null;index" json:"agency_id"`
	MemberID  *uint            `gorm:"index" json:"member_id"`
	Rate      float64          `gorm:"not null" json:"rate"`
	Amount    float64          `gorm:"not null" json:"amount"`
	Status    CommissionStatus `gorm:"type:varchar(10);not null;index" json:"status"`
	PaidAt    *time.Time       `json:"paid_at"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`

	Deal *Deal `gorm:"foreignKey:DealID" json:"deal,omitempty"`
}

type DealFilter struct {
	AgentID    *uint  `form:"agentId"`
	PropertyID *uint  `form:"propertyId"`
	Query      string `form:"q"`
}
