package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"recruitflow-crm/pkg/config"
	"recruitflow-crm/pkg/db"
	"recruitflow-crm/pkg/gen"
	"recruitflow-crm/pkg/logger"
	"recruitflow-crm/pkg/redis"
	"recruitflow-crm/pkg/task"
	"recruitflow-crm/services/auditlog"
	"recruitflow-crm/services/esign"
	"recruitflow-crm/services/feeagreement"
	"recruitflow-crm/services/notification"
)

// The sweeper process owns everything asynchronous: the expiry scheduler, the
// sweep worker, notification delivery and outbound signature requests.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		auditlog.Module,
		fx.Provide(
			feeagreement.NewService,
			feeagreement.NewSweepWorker,
		),
		fx.Invoke(feeagreement.AutoMigrate, esign.AutoMigrate),
		feeagreement.SchedulerModule,
		esign.WorkerModule,
		notification.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
