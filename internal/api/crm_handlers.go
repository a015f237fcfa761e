package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatehub/server/internal/database"
	"estatehub/server/internal/leads"
	"estatehub/server/internal/models"
	"estatehub/server/internal/pipeline"
)

// maxImportBody caps the size of an uploaded listing feed
const maxImportBody = 10 << 20

func (h *Handler) agencyTenant(c *gin.Context) (database.Tenant, bool) {
	id, ok := h.agencyID(c)
	return database.AgencyTenant(id), ok
}

func (h *Handler) developerTenant(c *gin.Context) (database.Tenant, bool) {
	id, ok := h.developerID(c)
	return database.DeveloperTenant(id), ok
}

func (h *Handler) listLeads(c *gin.Context, tenant database.Tenant) {
	var filter models.LeadFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	page, err := h.Leads.List(c.Request.Context(), tenant, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) createLead(c *gin.Context, tenant database.Tenant) {
	var in leads.CreateInput
	if !h.bindJSON(c, &in) {
		return
	}
	lead, err := h.Leads.Create(c.Request.Context(), tenant, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lead)
}

func (h *Handler) getLead(c *gin.Context, tenant database.Tenant) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	lead, err := h.Leads.Get(c.Request.Context(), tenant, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

func (h *Handler) updateLead(c *gin.Context, tenant database.Tenant) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var patch leads.Patch
	if !h.bindJSON(c, &patch) {
		return
	}
	lead, err := h.Leads.Update(c.Request.Context(), tenant, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

func (h *Handler) ListAgencyLeads(c *gin.Context) {
	if tenant, ok := h.agencyTenant(c); ok {
		h.listLeads(c, tenant)
	}
}

func (h *Handler) CreateAgencyLead(c *gin.Context) {
	if tenant, ok := h.agencyTenant(c); ok {
		h.createLead(c, tenant)
	}
}

func (h *Handler) GetAgencyLead(c *gin.Context) {
	if tenant, ok := h.agencyTenant(c); ok {
		h.getLead(c, tenant)
	}
}

func (h *Handler) UpdateAgencyLead(c *gin.Context) {
	if tenant, ok := h.agencyTenant(c); ok {
		h.updateLead(c, tenant)
	}
}

func (h *Handler) ListDeveloperLeads(c *gin.Context) {
	if tenant, ok := h.developerTenant(c); ok {
		h.listLeads(c, tenant)
	}
}

func (h *Handler) CreateDeveloperLead(c *gin.Context) {
	if tenant, ok := h.developerTenant(c); ok {
		h.createLead(c, tenant)
	}
}

func (h *Handler) GetDeveloperLead(c *gin.Context) {
	if tenant, ok := h.developerTenant(c); ok {
		h.getLead(c, tenant)
	}
}

func (h *Handler) UpdateDeveloperLead(c *gin.Context) {
	if tenant, ok := h.developerTenant(c); ok {
		h.updateLead(c, tenant)
	}
}

func (h *Handler) ConvertLead(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var in pipeline.ConvertInput
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &in) {
		return
	}
	deal, err := h.Pipeline.ConvertLead(c.Request.Context(), agencyID, id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

func (h *Handler) PipelineBoard(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	var filter models.DealFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	board, err := h.Pipeline.Board(c.Request.Context(), agencyID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *Handler) CreateDeal(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	var in pipeline.CreateInput
	if !h.bindJSON(c, &in) {
		return
	}
	deal, err := h.Pipeline.Create(c.Request.Context(), agencyID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

func (h *Handler) GetDeal(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	deal, err := h.Pipeline.Get(c.Request.Context(), agencyID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// UpdateDeal edits fields and moves the card on the board in one request.
func (h *Handler) UpdateDeal(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var patch pipeline.Patch
	if !h.bindJSON(c, &patch) {
		return
	}
	deal, err := h.Pipeline.Update(c.Request.Context(), agencyID, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *Handler) DeleteDeal(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Pipeline.Delete(c.Request.Context(), agencyID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListCommissions(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	memberID, ok := h.optionalUintQuery(c, "memberId")
	if !ok {
		return
	}
	status := models.CommissionStatus(c.Query("status"))
	commissions, err := h.Pipeline.ListCommissions(c.Request.Context(), agencyID, status, memberID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commissions)
}

func (h *Handler) PayCommission(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	commission, err := h.Pipeline.PayCommission(c.Request.Context(), agencyID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commission)
}

// ImportListings queues a partner HTML feed; batches are stored in the background.
func (h *Handler) ImportListings(c *gin.Context) {
	agencyID, ok := h.agencyID(c)
	if !ok {
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBody)
	result, err := h.Importer.Enqueue(c.Request.Context(), body, agencyID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}
