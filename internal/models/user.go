package models

import "time"

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleAgencyAdmin Role = "AGENCY_ADMIN"
	RoleAgent       Role = "AGENT"
	RoleDeveloper   Role = "DEVELOPER"
	RoleBuyer       Role = "BUYER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAgencyAdmin, RoleAgent, RoleDeveloper, RoleBuyer:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Role         Role      `gorm:"type:varchar(20);not null" json:"role"`
	AgencyID     *uint     `gorm:"index" json:"agency_id"`
	DeveloperID  *uint     `gorm:"index" json:"developer_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
