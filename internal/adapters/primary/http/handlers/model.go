package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"transit-classifier-service/internal/adapters/primary/http/dto"
	"transit-classifier-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) ListModels(c *gin.Context) {
	entries, err := h.registrySvc.List(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list models failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.ModelResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.ToModelResponse(e))
	}

	c.JSON(http.StatusOK, items)
}

func (h *Handler) GetModel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
		return
	}

	entry, err := h.registrySvc.Get(c.Request.Context(), id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToModelResponse(entry))
}

// CreateModel trains and registers a model. When artifact_path is given the
// artifact is registered as is and no training runs.
func (h *Handler) CreateModel(c *gin.Context) {
	var req dto.CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params, err := dto.ToHyperparameters(&req)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	var id int64
	if strings.TrimSpace(req.ArtifactPath) != "" {
		var metrics domain.Metrics
		if req.Metrics != nil {
			metrics = *req.Metrics
		}
		id, err = h.registrySvc.Create(c.Request.Context(), params, req.Name, req.ArtifactPath, metrics)
	} else {
		id, err = h.registrySvc.RegisterModel(c.Request.Context(), params, req.Name)
	}
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateModelResponse{ModelID: id})
}

func (h *Handler) GetActiveModel(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToActiveModelResponse(h.registrySvc.ActiveModel()))
}

func (h *Handler) SetActiveModel(c *gin.Context) {
	var req dto.SetActiveModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.ModelID == nil) == (req.ArtifactPath == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of model_id or artifact_path is required"})
		return
	}

	var (
		active domain.ActiveModel
		err    error
	)
	if req.ModelID != nil {
		active, err = h.registrySvc.SetActiveModel(c.Request.Context(), *req.ModelID)
	} else {
		active, err = h.registrySvc.SetActivePath(*req.ArtifactPath)
	}
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToActiveModelResponse(active))
}

func (h *Handler) ResetActiveModel(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToActiveModelResponse(h.registrySvc.ResetActiveModel()))
}
