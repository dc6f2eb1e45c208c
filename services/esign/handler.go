package esign

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"recruitflow-crm/pkg/config"
	"recruitflow-crm/pkg/errutil"
)

// Handler receives provider webhooks. The raw body is read before any
// parsing because the signature covers the exact bytes on the wire.
type Handler struct {
	service      *Service
	headers      []string
	maxBodyBytes int64
}

func NewHandler(service *Service, cfg *config.Config) *Handler {
	return &Handler{
		service:      service,
		headers:      cfg.Esign.SignatureHeaders,
		maxBodyBytes: cfg.Esign.MaxBodyBytes,
	}
}

func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	engine.POST("/v1/esign/webhook", h.Receive)
}

func (h *Handler) Receive(c *gin.Context) {
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	body, err := io.ReadAll(reader)
	if err != nil {
		c.Error(errutil.BadRequest("failed to read webhook body", errutil.WithErr(err)))
		return
	}

	candidates := make([]string, 0, len(h.headers))
	for _, header := range h.headers {
		candidates = append(candidates, c.GetHeader(header))
	}

	result, err := h.service.Ingest(c.Request.Context(), body, candidates)
	if err != nil {
		if errutil.HasStatus(err, errutil.StatusUnauthorized) {
			// deliberately generic, no hint about which check failed
			c.Error(errutil.Unauthorized("unauthorized"))
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"envelope_id": result.Envelope.EnvelopeID,
		"duplicate":   result.Duplicate,
		"ignored":     result.Ignored,
	})
}
