package esign

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"recruitflow-crm/pkg/config"
)

var Module = fx.Module("esign.service",
	fx.Provide(
		NewVerifierFromConfig,
		NewEventStore,
		NewService,
		NewHandler,
	),
	fx.Invoke(
		AutoMigrate,
		registerRoutes,
	),
)

// WorkerModule registers the outbound signature-request consumer; wire it
// only into the worker process.
var WorkerModule = fx.Module("esign.worker",
	fx.Provide(
		NewStubRequester,
		NewRequestWorker,
	),
	fx.Invoke(RegisterRequestWorker),
)

func NewVerifierFromConfig(cfg *config.Config) *Verifier {
	return NewVerifier(cfg.Esign.WebhookKey)
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ExternalSignatureEvent{})
}

func registerRoutes(engine *gin.Engine, h *Handler) {
	h.RegisterRoutes(engine)
}
