package feeagreement

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("feeagreement.service",
	fx.Provide(
		NewService,
		NewHandler,
		NewSweepWorker,
	),
	fx.Invoke(
		AutoMigrate,
		registerRoutes,
	),
)

// SchedulerModule runs the periodic expiry sweep; wire it only into the
// worker process.
var SchedulerModule = fx.Module("feeagreement.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler, RegisterSweepWorker),
)

func registerRoutes(engine *gin.Engine, h *Handler) {
	h.RegisterRoutes(engine)
}
