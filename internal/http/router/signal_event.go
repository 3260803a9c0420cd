package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.co/distributor/internal/http/handler"
)

func SignalEventRouter(router *gin.RouterGroup, handler *handler.SignalEventHandler) {
	router.POST("/process-async", handler.ProcessAsync)
	router.POST("/retry-async", handler.RetryAsync)
	router.GET("/jobs/:jobId", handler.JobStatus)
}
