package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatehub/server/internal/auth"
	"estatehub/server/internal/messaging"
)

type SendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) ListConversations(c *gin.Context) {
	conversations, err := h.Messaging.Conversations(c.Request.Context(), auth.FromContext(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// StartConversation answers 201 for a new conversation and 200 when the
// message was added to an existing one.
func (h *Handler) StartConversation(c *gin.Context) {
	var in messaging.StartInput
	if !h.bindJSON(c, &in) {
		return
	}
	conv, created, err := h.Messaging.Start(c.Request.Context(), auth.FromContext(c).UserID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conv)
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	before, ok := h.optionalUintQuery(c, "before")
	if !ok {
		return
	}
	limit, ok := h.intQuery(c, "limit", 0)
	if !ok {
		return
	}
	var cursor uint
	if before != nil {
		cursor = *before
	}
	messages, err := h.Messaging.Messages(c.Request.Context(), auth.FromContext(c).UserID, id, cursor, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req SendMessageRequest
	if !h.bindJSON(c, &req) {
		return
	}
	msg, err := h.Messaging.Send(c.Request.Context(), auth.FromContext(c).UserID, id, req.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) MarkConversationRead(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Messaging.MarkRead(c.Request.Context(), auth.FromContext(c).UserID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Websocket authenticates with the token query parameter.
func (h *Handler) Websocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing token"})
		return
	}
	claims, err := h.Issuer.Parse(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	h.Hub.Serve(c.Writer, c.Request, claims.UserID, h.Messaging)
}
