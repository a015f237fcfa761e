package models

import "time"

type LeadSource string

const (
	LeadSourceWebsite  LeadSource = "WEBSITE"
	LeadSourceReferral LeadSource = "REFERRAL"
	LeadSourceSocial   LeadSource = "SOCIAL"
	LeadSourcePortal   LeadSource = "PORTAL"
	LeadSourceWalkIn   LeadSource = "WALK_IN"
	LeadSourceOther    LeadSource = "OTHER"
)

var LeadSources = []LeadSource{
	LeadSourceWebsite,
	LeadSourceReferral,
	LeadSourceSocial,
	LeadSourcePortal,
	LeadSourceWalkIn,
	LeadSourceOther,
}

func (s LeadSource) Valid() bool {
	for _, v := range LeadSources {
		if v == s {
			return true
		}
	}
	return false
}

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "NEW"
	LeadStatusContacted LeadStatus = "CONTACTED"
	LeadStatusQualified LeadStatus = "QUALIFIED"
	LeadStatusConverted LeadStatus = "CONVERTED"
	LeadStatusLost      LeadStatus = "LOST"
)

// LeadStatuses is ordered the way the funnel is displayed.
var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusConverted,
	LeadStatusLost,
}

func (s LeadStatus) Valid() bool {
	for _, v := range LeadStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Lead belongs to exactly one tenant: an agency or a developer.
type Lead struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Source      LeadSource `gorm:"type:varchar(20);not null;index" json:"source"`
	Status      LeadStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Budget      *float64   `json:"budget"`
	Notes       string     `json:"notes"`
	AgencyID    *uint      `gorm:"index" json:"agency_id"`
	DeveloperID *uint      `gorm:"index" json:"developer_id"`
	PropertyID  *uint      `gorm:"index" json:"property_id"`
	ProjectID   *uint      `gorm:"index" json:"project_id"`
	AssigneeID  *uint      `gorm:"index" json:"assignee_id"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type LeadFilter struct {
	Status     LeadStatus `form:"status"`
	Source     LeadSource `form:"source"`
	AssigneeID *uint      `form:"assigneeId"`
	ProjectID  *uint      `form:"projectId"`
	From       *time.Time `form:"from" time_format:"2006-01-02"`
	To         *time.Time `form:"to" time_format:"2006-01-02"`
	Limit      int        `form:"limit"`
	Offset     int        `form:"offset"`
}
