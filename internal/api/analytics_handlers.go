package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatehub/server/internal/analytics"
	"estatehub/server/internal/models"
)

func (h *Handler) DeveloperOverview(c *gin.Context) {
	developerID, ok := h.developerID(c)
	if !ok {
		return
	}
	days, err := analytics.ParseDays(c.Query("days"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	projectID, ok := h.optionalUintQuery(c, "projectId")
	if !ok {
		return
	}
	overview, err := h.Analytics.DeveloperOverview(c.Request.Context(), developerID, days, projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *Handler) AgencyOverview(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	days, err := analytics.ParseDays(c.Query("days"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	overview, err := h.Analytics.AgencyOverview(c.Request.Context(), agencyID, days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *Handler) AgentPerformance(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	days, err := analytics.ParseDays(c.Query("days"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	stats, err := h.Analytics.AgentPerformance(c.Request.Context(), agencyID, days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) MarketStats(c *gin.Context) {
	listingType := models.ListingType(c.Query("listingType"))
	stats, err := h.Analytics.MarketStats(c.Request.Context(), c.Query("city"), listingType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// MarketDistricts returns a GeoJSON FeatureCollection of district outlines.
func (h *Handler) MarketDistricts(c *gin.Context) {
	fc, err := h.Analytics.MarketDistricts(c.Request.Context(), c.Query("city"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fc)
}
