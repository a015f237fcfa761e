package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/leads"
	"estatehub/server/internal/listings"
	"estatehub/server/internal/models"
)

func (h *Handler) SearchProperties(c *gin.Context) {
	var filter models.PropertyFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	page, err := h.Listings.Search(c.Request.Context(), auth.FromContext(c), filter, c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetProperty(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	property, err := h.Listings.Get(c.Request.Context(), auth.FromContext(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, property)
}

func (h *Handler) CreateProperty(c *gin.Context) {
	var in listings.Input
	if !h.bindJSON(c, &in) {
		return
	}
	property, err := h.Listings.Create(c.Request.Context(), auth.FromContext(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, property)
}

func (h *Handler) UpdateProperty(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var patch listings.Patch
	if !h.bindJSON(c, &patch) {
		return
	}
	property, err := h.Listings.Update(c.Request.Context(), auth.FromContext(c), id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, property)
}

func (h *Handler) ArchiveProperty(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Listings.Archive(c.Request.Context(), auth.FromContext(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddFavorite(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Listings.AddFavorite(c.Request.Context(), auth.FromContext(c).UserID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RemoveFavorite(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Listings.RemoveFavorite(c.Request.Context(), auth.FromContext(c).UserID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListFavorites(c *gin.Context) {
	favorites, err := h.Listings.Favorites(c.Request.Context(), auth.FromContext(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, favorites)
}

func (h *Handler) CreateInquiry(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var in leads.Inquiry
	if !h.bindJSON(c, &in) {
		return
	}
	lead, err := h.Leads.Inquire(c.Request.Context(), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": lead.ID, "status": lead.Status})
}

func (h *Handler) SimilarProperties(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	limit, ok := h.intQuery(c, "limit", 0)
	if !ok {
		return
	}
	properties, err := h.Recommendations.Similar(c.Request.Context(), id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, properties)
}

func (h *Handler) NearbyProperties(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	limit, ok := h.intQuery(c, "limit", 0)
	if !ok {
		return
	}
	radius := 0.0
	if raw := c.Query("radiusKm"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			h.respondError(c, apperr.BadRequest("radiusKm must be a positive number"))
			return
		}
		radius = v
	}
	nearby, err := h.Recommendations.Nearby(c.Request.Context(), id, radius, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nearby)
}

func (h *Handler) RecommendedProperties(c *gin.Context) {
	limit, ok := h.intQuery(c, "limit", 0)
	if !ok {
		return
	}
	properties, err := h.Recommendations.ForUser(c.Request.Context(), auth.FromContext(c).UserID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, properties)
}
