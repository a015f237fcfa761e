package api

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

type AgencyRequest struct {
	Name                  string  `json:"name" binding:"required"`
	City                  string  `json:"city"`
	Phone                 string  `json:"phone"`
	Email                 string  `json:"email"`
	DefaultCommissionRate float64 `json:"default_commission_rate"`
	TelegramChatID        string  `json:"telegram_chat_id"`
}

type MemberRequest struct {
	Email          string  `json:"email" binding:"required"`
	Password       string  `json:"password" binding:"required"`
	Name           string  `json:"name"`
	Title          string  `json:"title"`
	CommissionRate float64 `json:"commission_rate"`
	Admin          bool    `json:"admin"`
}

type MemberPatch struct {
	Title          *string  `json:"title"`
	CommissionRate *float64 `json:"commission_rate"`
	Active         *bool    `json:"active"`
}

type ProjectRequest struct {
	Name           string               `json:"name" binding:"required"`
	City           string               `json:"city"`
	Status         models.ProjectStatus `json:"status"`
	CompletionDate *time.Time           `json:"completion_date"`
}

type ProjectPatch struct {
	Name           *string               `json:"name"`
	City           *string               `json:"city"`
	Status         *models.ProjectStatus `json:"status"`
	CompletionDate *time.Time            `json:"completion_date"`
}

func validRate(rate float64) error {
	if rate < 0 || rate > 100 {
		return apperr.BadRequest("commission rate must be between 0 and 100")
	}
	return nil
}

func (h *Handler) ListAgencies(c *gin.Context) {
	agencies, err := h.DB.ListAgencies(c.Request.Context(), c.Query("city"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agencies)
}

func (h *Handler) GetAgency(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	agency, err := h.DB.GetAgency(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agency)
}

func (h *Handler) CreateAgency(c *gin.Context) {
	var req AgencyRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := validRate(req.DefaultCommissionRate); err != nil {
		h.respondError(c, err)
		return
	}
	agency := &models.Agency{
		Name:                  strings.TrimSpace(req.Name),
		City:                  strings.TrimSpace(req.City),
		Phone:                 req.Phone,
		Email:                 req.Email,
		DefaultCommissionRate: req.DefaultCommissionRate,
		TelegramChatID:        req.TelegramChatID,
	}
	if err := h.DB.CreateAgency(c.Request.Context(), agency); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agency)
}

func (h *Handler) ListDevelopers(c *gin.Context) {
	developers, err := h.DB.ListDevelopers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, developers)
}

func (h *Handler) GetDeveloper(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	developer, err := h.DB.GetDeveloper(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, developer)
}

func (h *Handler) ListMembers(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	members, err := h.DB.ListMembers(c.Request.Context(), agencyID, c.Query("active") == "true")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// CreateMember provisions a user account for a new agent of the caller's agency.
func (h *Handler) CreateMember(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	if !isAgencyAdmin(auth.FromContext(c), agencyID) {
		h.respondError(c, apperr.Forbidden("only agency admins can add members"))
		return
	}
	var req MemberRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		h.respondError(c, apperr.BadRequest("invalid email address"))
		return
	}
	if len(req.Password) < minPasswordLength {
		h.respondError(c, apperr.BadRequest("password must be at least %d characters", minPasswordLength))
		return
	}
	if err := validRate(req.CommissionRate); err != nil {
		h.respondError(c, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	role := models.RoleAgent
	if req.Admin {
		role = models.RoleAgencyAdmin
	}
	var member *models.Member
	err = h.DB.Transaction(c.Request.Context(), func(tx *database.Database) error {
		user := &models.User{
			Email:        req.Email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(req.Name),
			Role:         role,
			AgencyID:     &agencyID,
		}
		if err := tx.CreateUser(c.Request.Context(), user); err != nil {
			return err
		}
		member = &models.Member{
			UserID:         user.ID,
			AgencyID:       agencyID,
			Title:          req.Title,
			CommissionRate: req.CommissionRate,
			Active:         true,
			User:           user,
		}
		return tx.CreateMember(c.Request.Context(), member)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *Handler) UpdateMember(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	if !isAgencyAdmin(auth.FromContext(c), agencyID) {
		h.respondError(c, apperr.Forbidden("only agency admins can edit members"))
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var patch MemberPatch
	if !h.bindJSON(c, &patch) {
		return
	}

	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.CommissionRate != nil {
		if err := validRate(*patch.CommissionRate); err != nil {
			h.respondError(c, err)
			return
		}
		updates["commission_rate"] = *patch.CommissionRate
	}
	if patch.Active != nil {
		updates["active"] = *patch.Active
	}
	member, err := h.DB.UpdateMember(c.Request.Context(), agencyID, id, updates)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *Handler) ListProjects(c *gin.Context) {
	developerID, ok := h.developerID(c)
	if !ok {
		return
	}
	projects, err := h.DB.ListProjects(c.Request.Context(), developerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) CreateProject(c *gin.Context) {
	developerID, ok := h.developerID(c)
	if !ok {
		return
	}
	var req ProjectRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Status == "" {
		req.Status = models.ProjectStatusPlanning
	}
	if !req.Status.Valid() {
		h.respondError(c, apperr.BadRequest("unknown project status %q", req.Status))
		return
	}
	project := &models.Project{
		DeveloperID:    developerID,
		Name:           strings.TrimSpace(req.Name),
		City:           strings.TrimSpace(req.City),
		Status:         req.Status,
		CompletionDate: req.CompletionDate,
	}
	if err := h.DB.CreateProject(c.Request.Context(), project); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	developerID, ok := h.developerID(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var patch ProjectPatch
	if !h.bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	project, err := h.DB.GetProject(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if project.DeveloperID != developerID {
		h.respondError(c, apperr.Forbidden("project %d belongs to another developer", id))
		return
	}

	updates := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			h.respondError(c, apperr.BadRequest("name cannot be empty"))
			return
		}
		updates["name"] = name
	}
	if patch.City != nil {
		updates["city"] = strings.TrimSpace(*patch.City)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			h.respondError(c, apperr.BadRequest("unknown project status %q", *patch.Status))
			return
		}
		updates["status"] = *patch.Status
	}
	if patch.CompletionDate != nil {
		updates["completion_date"] = patch.CompletionDate.UTC()
	}
	project, err = h.DB.UpdateProject(ctx, id, updates)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}
