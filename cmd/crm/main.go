package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"recruitflow-crm/internal/server"
	"recruitflow-crm/pkg/config"
	"recruitflow-crm/pkg/db"
	"recruitflow-crm/pkg/gen"
	"recruitflow-crm/pkg/health"
	"recruitflow-crm/pkg/logger"
	"recruitflow-crm/pkg/redis"
	"recruitflow-crm/pkg/task"
	"recruitflow-crm/services/auditlog"
	"recruitflow-crm/services/esign"
	"recruitflow-crm/services/feeagreement"
)

// The API process serves the actor-command surface and the provider webhook.
// Background work (sweeps, notifications, signature requests) runs in the
// sweeper process; this one only enqueues.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redis.Module,
		task.Client,
		health.Module,
		server.Module,
		auditlog.Module,
		feeagreement.Module,
		esign.Module,
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
