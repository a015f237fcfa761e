package models

import "time"

type Agency struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"not null" json:"name"`
	City  string `json:"city"`
	Phone string `json:"phone"`
	Email string `json:"email"`

	// Percent of the deal value paid to the agent when no member rate is set
	DefaultCommissionRate float64 `gorm:"not null;default:0" json:"default_commission_rate"`

	// Optional Telegram chat receiving lead notifications for this agency
	TelegramChatID string `json:"telegram_chat_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is an agent working for an agency.
type Member struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	AgencyID       uint      `gorm:"not null;index" json:"agency_id"`
	Title          string    `json:"title"`
	CommissionRate float64   `gorm:"not null;default:0" json:"commission_rate"`
	Active         bool      `gorm:"not null" json:"active"`
	User           *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DisplayName prefers the user's name over the email.
func (m *Member) DisplayName() string {
	if m.User != nil && m.User.Name != "" {
		return m.User.Name
	}
	if m.User != nil {
		return m.User.Email
	}
	return ""
}

type Developer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Website     string    `json:"website"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProjectStatus string

const (
	ProjectStatusPlanning          ProjectStatus = "PLANNING"
	ProjectStatusUnderConstruction ProjectStatus = "UNDER_CONSTRUCTION"
	ProjectStatusCompleted         ProjectStatus = "COMPLETED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusUnderConstruction, ProjectStatusCompleted:
		return true
	}
	return false
}

// Project is a developer's construction project grouping its units.
type Project struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	DeveloperID    uint          `gorm:"not null;index" json:"developer_id"`
	Name           string        `gorm:"not null" json:"name"`
	City           string        `json:"city"`
	Status         ProjectStatus `gorm:"type:varchar(20);not null" json:"status"`
	CompletionDate *time.Time    `json:"completion_date"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
