package api

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/models"
)

const minPasswordLength = 8

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register creates a BUYER account. Staff accounts are provisioned by admins.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
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

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         models.RoleBuyer,
	}
	if err := h.DB.CreateUser(c.Request.Context(), user); err != nil {
		h.respondError(c, err)
		return
	}

	h.issueToken(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	user, err := h.DB.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.respondError(c, apperr.Unauthorized("invalid email or password"))
		return
	}
	h.issueToken(c, http.StatusOK, user)
}

func (h *Handler) issueToken(c *gin.Context, status int, user *models.User) {
	token, expiresAt, err := h.Issuer.Issue(user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, TokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.DB.GetUser(c.Request.Context(), auth.FromContext(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
