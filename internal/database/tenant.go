package database

import (
	"fmt"

	"gorm.io/gorm"
)

// Tenant scopes CRM queries to one agency or one developer.
type Tenant struct {
	AgencyID    *uint
	DeveloperID *uint
}

func AgencyTenant(id uint) Tenant {
	return Tenant{AgencyID: &id}
}

func DeveloperTenant(id uint) Tenant {
	return Tenant{DeveloperID: &id}
}

func (t Tenant) Valid() bool {
	return (t.AgencyID != nil) != (t.DeveloperID != nil)
}

func (t Tenant) String() string {
	switch {
	case t.AgencyID != nil:
		return fmt.Sprintf("agency:%d", *t.AgencyID)
	case t.DeveloperID != nil:
		return fmt.Sprintf("developer:%d", *t.DeveloperID)
	default:
		return "none"
	}
}

// scope restricts q to rows of table owned by the tenant. An invalid tenant matches nothing.
func (t Tenant) scope(q *gorm.DB, table string) *gorm.DB {
	switch {
	case t.AgencyID != nil:
		return q.Where(table+".agency_id = ?", *t.AgencyID)
	case t.DeveloperID != nil:
		return q.Where(table+".developer_id = ?", *t.DeveloperID)
	default:
		return q.Where("1 = 0")
	}
}
