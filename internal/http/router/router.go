package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/codeask/internal/http/handler"
	"basegraph.app/codeask/internal/service"
)

type RouterConfig struct {
	Heartbeat time.Duration // SSE keepalive interval; zero uses the handler default
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	askHandler := handler.NewAskHandler(services.Ask())
	answerHandler := handler.NewAnswerHandler(services.Stores(), cfg.Heartbeat)
	escalationHandler := handler.NewEscalationHandler(services.Escalations())

	v1 := router.Group("/api/v1")
	{
		AskRouter(v1, askHandler, answerHandler)
		EscalationRouter(v1.Group("/escalations"), escalationHandler)
	}
}
