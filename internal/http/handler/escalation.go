package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"basegraph.app/codeask/internal/http/dto"
	"basegraph.app/codeask/internal/service"
)

type EscalationHandler struct {
	escalations service.EscalationService
}

func NewEscalationHandler(escalations service.EscalationService) *EscalationHandler {
	return &EscalationHandler{escalations: escalations}
}

func (h *EscalationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	esc, err := h.escalations.Begin(ctx, req.RepoRoot, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, esc)
}

func (h *EscalationHandler) Get(c *gin.Context) {
	escalationID, ok := parseID(c)
	if !ok {
		return
	}

	esc, err := h.escalations.Get(c.Request.Context(), escalationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}

func (h *EscalationHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	escalationID, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.UpdateEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	esc, err := h.escalations.Edit(ctx, escalationID, req.DraftEdit())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}

// Send starts delivery and answers 202 right away. The outcome is visible
// through Get once delivery finishes.
func (h *EscalationHandler) Send(c *gin.Context) {
	ctx := c.Request.Context()
	escalationID, ok := parseID(c)
	if !ok {
		return
	}

	replies, err := h.escalations.Submit(ctx, escalationID)
	if err != nil {
		respondError(c, err)
		return
	}

	go drainReply(context.WithoutCancel(ctx), replies)

	esc, err := h.escalations.Get(ctx, escalationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, esc)
}

func (h *EscalationHandler) Preview(c *gin.Context) {
	escalationID, ok := parseID(c)
	if !ok {
		return
	}

	html, err := h.escalations.Preview(c.Request.Context(), escalationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func drainReply(ctx context.Context, replies <-chan service.SubmitReply) {
	reply := <-replies
	if reply.Err != nil {
		slog.WarnContext(ctx, "escalation delivery failed", "escalation_id", reply.Escalation.ID, "error", reply.Err)
		return
	}
	slog.DebugContext(ctx, "escalation delivery finished", "escalation_id", reply.Escalation.ID, "state", reply.Escalation.State)
}

func parseID(c *gin.Context) (int64, bool) {
	escalationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escalation id"})
		return 0, false
	}
	return escalationID, true
}
