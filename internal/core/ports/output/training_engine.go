package ports

import (
	"context"

	"transit-classifier-service/internal/core/domain"
)

// TrainingResult is what the training engine reports for a finished run
type TrainingResult struct {
	ArtifactName string  `json:"artifact_name"`
	Accuracy     float64 `json:"accuracy"`
	ROCAUC       float64 `json:"roc_auc"`
	PRAUC        float64 `json:"pr_auc"`
}

// Metrics returns the evaluation part of the result.
func (r TrainingResult) Metrics() domain.Metrics {
	return domain.Metrics{Accuracy: r.Accuracy, ROCAUC: r.ROCAUC, PRAUC: r.PRAUC}
}

// TrainingEngine runs one training job for a hyperparameter set.
type TrainingEngine interface {
	// Train blocks until the engine finished and returns its result.
	Train(ctx context.Context, params domain.Hyperparameters) (*TrainingResult, error)

	// IsAvailable checks if a training backend is configured
	IsAvailable() bool
}

// ObjectReader reads small objects (training results, artifacts) from object storage.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
}
