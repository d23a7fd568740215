package handlers

import (
	"net/http"

	"transit-classifier-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

// MaxUploadBytes bounds the size of an uploaded prediction table.
const MaxUploadBytes = 64 << 20

type Handler struct {
	registrySvc   *services.RegistryService
	predictionSvc *services.PredictionService
	ingestSvc     *services.IngestionService
}

func New(
	registrySvc *services.RegistryService,
	predictionSvc *services.PredictionService,
	ingestSvc *services.IngestionService,
) *Handler {
	return &Handler{
		registrySvc:   registrySvc,
		predictionSvc: predictionSvc,
		ingestSvc:     ingestSvc,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Predictions
	r.POST("/predict", h.Predict)
	r.POST("/predict_batch", h.PredictBatch)

	// Model Registry
	r.GET("/models", h.ListModels)
	r.GET("/models/:id", h.GetModel)
	r.POST("/models", h.CreateModel)

	// Active Model
	r.GET("/active_model", h.GetActiveModel)
	r.PUT("/active_model", h.SetActiveModel)
	r.DELETE("/active_model", h.ResetActiveModel)

	// Feature aliases
	r.GET("/features", h.ListFeatures)
}

// Healthz reports whether the registry store is reachable.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.registrySvc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
