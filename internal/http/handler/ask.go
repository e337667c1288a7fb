package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/codeask/internal/http/dto"
	"basegraph.app/codeask/internal/service"
)

type AskHandler struct {
	ask service.AskService
}

func NewAskHandler(ask service.AskService) *AskHandler {
	return &AskHandler{ask: ask}
}

func (h *AskHandler) Ask(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rng, err := req.LineRange()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	replies := h.ask.AskAsync(ctx, service.AskParams{
		RepoRoot: req.RepoRoot,
		Question: req.QuestionParams(),
		Range:    rng,
	})

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "client left before the answer arrived")
		return
	case reply := <-replies:
		if reply.Err != nil {
			respondError(c, reply.Err)
			return
		}

		notices := reply.Outcome.Notices
		if notices == nil {
			notices = []string{}
		}
		c.JSON(http.StatusOK, dto.AskResponse{
			Result:  dto.ToResultResponse(reply.Outcome.Result),
			Notices: notices,
		})
	}
}
