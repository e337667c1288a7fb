package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/codeask/internal/http/handler"
)

func AskRouter(rg *gin.RouterGroup, ask *handler.AskHandler, answers *handler.AnswerHandler) {
	rg.POST("/ask", ask.Ask)
	rg.GET("/answers/current", answers.Current)
	rg.GET("/answers/stream", answers.Stream)
}
