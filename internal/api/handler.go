package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"estatehub/server/internal/analytics"
	"estatehub/server/internal/apperr"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/database"
	"estatehub/server/internal/importer"
	"estatehub/server/internal/leads"
	"estatehub/server/internal/listings"
	"estatehub/server/internal/messaging"
	"estatehub/server/internal/models"
	"estatehub/server/internal/pipeline"
	"estatehub/server/internal/recommendation"
)

// Services groups everything the HTTP layer calls into.
type Services struct {
	DB              *database.Database
	Issuer          *auth.Issuer
	Listings        *listings.Service
	Leads           *leads.Service
	Pipeline        *pipeline.Service
	Analytics       *analytics.Service
	Recommendations *recommendation.Service
	Messaging       *messaging.Service
	Hub             *messaging.Hub
	Importer        *importer.Importer
}

type Handler struct {
	Services
	logger *logrus.Logger
	auth   *auth.Middleware
}

func NewHandler(services Services, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Handler{
		Services: services,
		logger:   logger,
		auth:     auth.NewMiddleware(services.Issuer, logger),
	}
}

// respondError renders err with the status of its kind. Internal errors are
// logged and hidden behind a generic message.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"path":       c.FullPath(),
			"request_id": c.GetString(requestIDKey),
		}).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

// bindJSON decodes the body into dst and answers 400 itself on failure.
func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			h.respondError(c, apperr.BadRequest("request body is required"))
		} else {
			h.respondError(c, apperr.BadRequest("invalid request body: %v", err))
		}
		return false
	}
	return true
}

func (h *Handler) bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		h.respondError(c, apperr.BadRequest("invalid query parameters: %v", err))
		return false
	}
	return true
}

func (h *Handler) idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		h.respondError(c, apperr.BadRequest("invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

// intQuery returns def when the parameter is absent.
func (h *Handler) intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		h.respondError(c, apperr.BadRequest("%s must be an integer", name))
		return 0, false
	}
	return v, true
}

func (h *Handler) optionalUintQuery(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.respondError(c, apperr.BadRequest("%s must be a positive integer", name))
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// agencyID returns the caller's agency or answers 403.
func (h *Handler) agencyID(c *gin.Context) (uint, bool) {
	claims := auth.FromContext(c)
	if claims == nil || claims.AgencyID == nil {
		h.respondError(c, apperr.Forbidden("this endpoint requires an agency account"))
		return 0, false
	}
	return *claims.AgencyID, true
}

func (h *Handler) developerID(c *gin.Context) (uint, bool) {
	claims := auth.FromContext(c)
	if claims == nil || claims.DeveloperID == nil {
		h.respondError(c, apperr.Forbidden("this endpoint requires a developer account"))
		return 0, false
	}
	return *claims.DeveloperID, true
}

// isAgencyAdmin reports whether the caller administers agencyID.
func isAgencyAdmin(claims *auth.Claims, agencyID uint) bool {
	if claims.Role == models.RoleAdmin {
		return true
	}
	return claims.Role == models.RoleAgencyAdmin && claims.AgencyID != nil && *claims.AgencyID == agencyID
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.DB.Ping(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
