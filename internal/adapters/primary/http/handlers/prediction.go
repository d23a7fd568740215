package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"transit-classifier-service/internal/adapters/primary/http/dto"
	"transit-classifier-service/internal/core/domain"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Predict(c *gin.Context) {
	var req dto.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pred, err := h.predictionSvc.Predict(c.Request.Context(), req.ModelID, req.Features)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToPredictResponse(pred))
}

func (h *Handler) PredictBatch(c *gin.Context) {
	raw := c.Query("model_id")
	if raw == "" {
		raw = c.PostForm("model_id")
	}
	modelID, err := optionalModelID(raw)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if header.Size > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", MaxUploadBytes)})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	blob, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.predictionSvc.PredictCSV(c.Request.Context(), modelID, header.Filename, blob)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToBatchPredictResponse(result))
}

func (h *Handler) ListFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToFeaturesResponse(h.ingestSvc.Aliases()))
}

// optionalModelID parses a model_id query value; empty means the active model.
func optionalModelID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidModelID, raw)
	}
	return &id, nil
}
