// Package seed loads demo organisations, accounts and listings from YAML.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"estatehub/server/internal/auth"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

type Account struct {
	Email    string      `yaml:"email"`
	Password string      `yaml:"password"`
	Name     string      `yaml:"name"`
	Phone    string      `yaml:"phone"`
	Role     models.Role `yaml:"role"`

	// Percent used for commissions of AGENT accounts
	CommissionRate float64 `yaml:"commission_rate"`
}

type Agency struct {
	Name           string    `yaml:"name"`
	City           string    `yaml:"city"`
	Email          string    `yaml:"email"`
	Phone          string    `yaml:"phone"`
	CommissionRate float64   `yaml:"commission_rate"`
	TelegramChatID string    `yaml:"telegram_chat_id"`
	Accounts       []Account `yaml:"accounts"`
}

type Developer struct {
	Name     string    `yaml:"name"`
	Website  string    `yaml:"website"`
	Accounts []Account `yaml:"accounts"`
}

type Property struct {
	Agency      string                `yaml:"agency"`
	Developer   string                `yaml:"developer"`
	Title       string                `yaml:"title"`
	Description string                `yaml:"description"`
	Type        models.PropertyType   `yaml:"type"`
	ListingType models.ListingType    `yaml:"listing_type"`
	Status      models.PropertyStatus `yaml:"status"`
	Price       float64               `yaml:"price"`
	Area        *float64              `yaml:"area"`
	Bedrooms    *int                  `yaml:"bedrooms"`
	Bathrooms   *int                  `yaml:"bathrooms"`
	City        string                `yaml:"city"`
	District    string                `yaml:"district"`
	Address     string                `yaml:"address"`
	Latitude    *float64              `yaml:"latitude"`
	Longitude   *float64              `yaml:"longitude"`
	Featured    bool                  `yaml:"featured"`
}

// File is the layout of a seed document.
type File struct {
	Agencies   []Agency    `yaml:"agencies"`
	Developers []Developer `yaml:"developers"`
	Buyers     []Account   `yaml:"buyers"`
	Properties []Property  `yaml:"properties"`
}

// Summary counts the rows created by Apply.
type Summary struct {
	Agencies   int
	Developers int
	Users      int
	Properties int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks references and enum values before anything is written.
func (f *File) Validate() error {
	agencies := make(map[string]bool, len(f.Agencies))
	for _, a := range f.Agencies {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("agency without name")
		}
		agencies[a.Name] = true
		for _, acc := range a.Accounts {
			if acc.Role != models.RoleAgencyAdmin && acc.Role != models.RoleAgent {
				return fmt.Errorf("agency %s: account %s must be AGENCY_ADMIN or AGENT", a.Name, acc.Email)
			}
		}
	}
	developers := make(map[string]bool, len(f.Developers))
	for _, d := range f.Developers {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("developer without name")
		}
		developers[d.Name] = true
	}
	for i, p := range f.Properties {
		if (p.Agency == "") == (p.Developer == "") {
			return fmt.Errorf("property %d: exactly one of agency or developer is required", i)
		}
		if p.Agency != "" && !agencies[p.Agency] {
			return fmt.Errorf("property %d: unknown agency %q", i, p.Agency)
		}
		if p.Developer != "" && !developers[p.Developer] {
			return fmt.Errorf("property %d: unknown developer %q", i, p.Developer)
		}
		if !p.Type.Valid() || !p.ListingType.Valid() {
			return fmt.Errorf("property %d: invalid type or listing type", i)
		}
		if p.Status != "" && !p.Status.Valid() {
			return fmt.Errorf("property %d: invalid status %q", i, p.Status)
		}
	}
	return nil
}

// Apply writes the whole file in one transaction.
func Apply(ctx context.Context, db *database.Database, f *File, logger *logrus.Logger) (*Summary, error) {
	if logger == nil {
		logger = logrus.New()
	}
	sum := &Summary{}
	err := db.Transaction(ctx, func(tx *database.Database) error {
		agencyIDs := make(map[string]uint, len(f.Agencies))
		for _, a := range f.Agencies {
			agency := &models.Agency{
				Name:                  a.Name,
				City:                  a.City,
				Email:                 a.Email,
				Phone:                 a.Phone,
				DefaultCommissionRate: a.CommissionRate,
				TelegramChatID:        a.TelegramChatID,
			}
			if err := tx.CreateAgency(ctx, agency); err != nil {
				return err
			}
			agencyIDs[a.Name] = agency.ID
			sum.Agencies++

			for _, acc := range a.Accounts {
				user, err := createUser(ctx, tx, acc, &agency.ID, nil)
				if err != nil {
					return err
				}
				sum.Users++
				member := &models.Member{UserID: user.ID, AgencyID: agency.ID, CommissionRate: acc.CommissionRate, Active: true}
				if err := tx.CreateMember(ctx, member); err != nil {
					return err
				}
			}
		}

		developerIDs := make(map[string]uint, len(f.Developers))
		for _, d := range f.Developers {
			developer := &models.Developer{Name: d.Name, Website: d.Website}
			if err := tx.CreateDeveloper(ctx, developer); err != nil {
				return err
			}
			developerIDs[d.Name] = developer.ID
			sum.Developers++

			for _, acc := range d.Accounts {
				acc.Role = models.RoleDeveloper
				if _, err := createUser(ctx, tx, acc, nil, &developer.ID); err != nil {
					return err
				}
				sum.Users++
			}
		}

		for _, acc := range f.Buyers {
			acc.Role = models.RoleBuyer
			if _, err := createUser(ctx, tx, acc, nil, nil); err != nil {
				return err
			}
			sum.Users++
		}

		for _, p := range f.Properties {
			property := toProperty(p)
			if p.Agency != "" {
				id := agencyIDs[p.Agency]
				property.AgencyID = &id
			} else {
				id := developerIDs[p.Developer]
				property.DeveloperID = &id
			}
			if err := tx.CreateProperty(ctx, property); err != nil {
				return err
			}
			sum.Properties++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"agencies":   sum.Agencies,
		"developers": sum.Developers,
		"users":      sum.Users,
		"properties": sum.Properties,
	}).Info("Seed data loaded")
	return sum, nil
}

func createUser(ctx context.Context, tx *database.Database, acc Account, agencyID, developerID *uint) (*models.User, error) {
	if acc.Password == "" {
		return nil, fmt.Errorf("account %s has no password", acc.Email)
	}
	hash, err := auth.HashPassword(acc.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        acc.Email,
		PasswordHash: hash,
		Name:         acc.Name,
		Phone:        acc.Phone,
		Role:         acc.Role,
		AgencyID:     agencyID,
		DeveloperID:  developerID,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func toProperty(p Property) *models.Property {
	status := p.Status
	if status == "" {
		status = models.PropertyStatusActive
	}
	return &models.Property{
		Title:       p.Title,
		Description: p.Description,
		Type:        p.Type,
		ListingType: p.ListingType,
		Status:      status,
		Price:       p.Price,
		Area:        p.Area,
		Bedrooms:    p.Bedrooms,
		Bathrooms:   p.Bathrooms,
		City:        p.City,
		District:    p.District,
		Address:     p.Address,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Featured:    p.Featured,
	}
}
