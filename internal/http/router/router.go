package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.co/distributor/internal/http/handler"
)

const SignalEventsPath = "/api/signal-events"

type RouterConfig struct {
	Jobs  handler.JobService
	Queue handler.JobQueue
	DB    handler.Pinger
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	health := handler.NewHealthHandler(cfg.DB)
	router.GET("/health", health.Health)

	signalEvents := handler.NewSignalEventHandler(cfg.Jobs, cfg.Queue, SignalEventsPath)
	SignalEventRouter(router.Group(SignalEventsPath), signalEvents)
}
