package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/codeask/internal/http/dto"
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/service"
)

// respondError maps service errors onto status codes. Unknown errors are 500.
func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var (
		validation *service.ValidationError
		upstream   *service.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validation.Error(), "fields": validation.Fields})
	case errors.As(err, &upstream):
		slog.WarnContext(ctx, "upstream failure", "op", upstream.Op, "status_code", upstream.StatusCode)
		c.JSON(http.StatusBadGateway, gin.H{"error": upstream.Display(), "upstream_status": upstream.StatusCode})
	case errors.Is(err, model.ErrInputMissing), errors.Is(err, dto.ErrSelectionNeedsFileText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNothingToEscalate),
		errors.Is(err, service.ErrSuperseded),
		errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEscalationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoRemote), errors.Is(err, service.ErrDeliveryNotConfigured):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(ctx, "unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
