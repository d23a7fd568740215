package ports

import (
	"context"

	"transit-classifier-service/internal/core/domain"
)

// Artifact is a loaded, ready-to-run trained model.
type Artifact interface {
	// Predict returns the predicted class and the probabilities of class 0 and 1.
	Predict(ctx context.Context, rec domain.FeatureRecord) (int, [2]float64, error)
}

// ArtifactStore loads artifacts by path. Implementations may cache.
type ArtifactStore interface {
	Load(ctx context.Context, path string) (Artifact, error)
}
