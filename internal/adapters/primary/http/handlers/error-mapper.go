package handlers

import (
	"errors"
	"net/http"

	"transit-classifier-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func mapDomainError(c *gin.Context, err error) {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrModelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	// Bad request / validation errors
	case errors.Is(err, domain.ErrInvalidModelID),
		errors.Is(err, domain.ErrInvalidFamily),
		errors.Is(err, domain.ErrInvalidHyperparameters),
		errors.Is(err, domain.ErrInvalidFeatures),
		errors.Is(err, domain.ErrInvalidArtifactPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Rejected uploads
	case errors.Is(err, domain.ErrNotCSV),
		errors.Is(err, domain.ErrEmptyOrInvalidTable),
		errors.Is(err, domain.ErrNoRecognizedColumns):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Service unavailable errors
	case errors.Is(err, domain.ErrTrainerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})

	case errors.Is(err, domain.ErrInferenceTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})

	// Inference, training and storage failures
	case errors.Is(err, domain.ErrArtifactNotFound),
		errors.Is(err, domain.ErrInference),
		errors.Is(err, domain.ErrTraining),
		errors.Is(err, domain.ErrRegistryWrite):
		log.WithError(err).WithField("request_id", c.GetString("request_id")).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

	default:
		log.WithError(err).WithField("request_id", c.GetString("request_id")).Error("unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
