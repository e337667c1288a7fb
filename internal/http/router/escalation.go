package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/codeask/internal/http/handler"
)

func EscalationRouter(rg *gin.RouterGroup, h *handler.EscalationHandler) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
	rg.POST("/:id/send", h.Send)
	rg.GET("/:id/preview", h.Preview)
}
