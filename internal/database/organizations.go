package database

import (
	"context"
	"fmt"

	"estatehub/server/internal/models"
)

func (d *Database) CreateAgency(ctx context.Context, agency *models.Agency) error {
	if err := d.db.WithContext(ctx).Create(agency).Error; err != nil {
		return fmt.Errorf("failed to create agency: %w", err)
	}
	return nil
}

func (d *Database) GetAgency(ctx context.Context, id uint) (*models.Agency, error) {
	var agency models.Agency
	if err := d.db.WithContext(ctx).First(&agency, id).Error; err != nil {
		return nil, notFound(err, "agency %d not found", id)
	}
	return &agency, nil
}

func (d *Database) ListAgencies(ctx context.Context, city string) ([]models.Agency, error) {
	q := d.db.WithContext(ctx).Order("name")
	if city != "" {
		q = q.Where("LOWER(city) = LOWER(?)", city)
	}
	var agencies []models.Agency
	if err := q.Find(&agencies).Error; err != nil {
		return nil, fmt.Errorf("failed to list agencies: %w", err)
	}
	return agencies, nil
}

func (d *Database) CreateMember(ctx context.Context, member *models.Member) error {
	if err := d.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetMember returns the member only if it belongs to agencyID.
func (d *Database) GetMember(ctx context.Context, agencyID, id uint) (*models.Member, error) {
	var member models.Member
	err := d.db.WithContext(ctx).Preload("User").
		Where("agency_id = ?", agencyID).
		First(&member, id).Error
	if err != nil {
		return nil, notFound(err, "member %d not found", id)
	}
	return &member, nil
}

func (d *Database) GetMemberByUser(ctx context.Context, userID uint) (*models.Member, error) {
	var member models.Member
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).First(&member).Error; err != nil {
		return nil, notFound(err, "user %d is not an agency member", userID)
	}
	return &member, nil
}

func (d *Database) ListMembers(ctx context.Context, agencyID uint, activeOnly bool) ([]models.Member, error) {
	q := d.db.WithContext(ctx).Preload("User").Where("agency_id = ?", agencyID).Order("id")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var members []models.Member
	if err := q.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (d *Database) UpdateMember(ctx context.Context, agencyID, id uint, updates map[string]any) (*models.Member, error) {
	if _, err := d.GetMember(ctx, agencyID, id); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := d.db.WithContext(ctx).Model(&models.Member{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update member: %w", err)
		}
	}
	return d.GetMember(ctx, agencyID, id)
}

func (d *Database) CreateDeveloper(ctx context.Context, developer *models.Developer) error {
	if err := d.db.WithContext(ctx).Create(developer).Error; err != nil {
		return fmt.Errorf("failed to create developer: %w", err)
	}
	return nil
}

func (d *Database) GetDeveloper(ctx context.Context, id uint) (*models.Developer, error) {
	var developer models.Developer
	if err := d.db.WithContext(ctx).First(&developer, id).Error; err != nil {
		return nil, notFound(err, "developer %d not found", id)
	}
	return &developer, nil
}

func (d *Database) ListDevelopers(ctx context.Context) ([]models.Developer, error) {
	var developers []models.Developer
	if err := d.db.WithContext(ctx).Order("name").Find(&developers).Error; err != nil {
		return nil, fmt.Errorf("failed to list developers: %w", err)
	}
	return developers, nil
}

func (d *Database) CreateProject(ctx context.Context, project *models.Project) error {
	if err := d.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject loads a project regardless of owner; callers check DeveloperID.
func (d *Database) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := d.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, notFound(err, "project %d not found", id)
	}
	return &project, nil
}

func (d *Database) ListProjects(ctx context.Context, developerID uint) ([]models.Project, error) {
	var projects []models.Project
	if err := d.db.WithContext(ctx).Where("developer_id = ?", developerID).Order("id").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (d *Database) UpdateProject(ctx context.Context, id uint, updates map[string]any) (*models.Project, error) {
	if len(updates) > 0 {
		if err := d.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update project: %w", err)
		}
	}
	return d.GetProject(ctx, id)
}
