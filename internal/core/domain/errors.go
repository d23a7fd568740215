package domain

import "errors"

// ============================================================================
// Model Registry Errors
// ============================================================================

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrInvalidModelID = errors.New("model id must be a positive integer")
	ErrRegistryWrite  = errors.New("registry write failed")
)

// Validation errors
var (
	ErrInvalidFamily          = errors.New("unsupported model family")
	ErrInvalidHyperparameters = errors.New("invalid hyperparameters")
	ErrInvalidFeatures        = errors.New("features contain no recognized canonical keys")
	ErrInvalidArtifactPath    = errors.New("artifact path is required")
)

// ============================================================================
// Ingestion Errors
// ============================================================================

var (
	ErrNotCSV              = errors.New("file must be a delimited text file (.csv, .tsv)")
	ErrEmptyOrInvalidTable = errors.New("file is empty or is not valid delimited data")
	ErrNoRecognizedColumns = errors.New("file has no recognized feature columns")
)

// ============================================================================
// Inference Errors
// ============================================================================

var (
	ErrArtifactNotFound = errors.New("model artifact not found")
	ErrInference        = errors.New("inference failed")
	ErrInferenceTimeout = errors.New("inference timed out")
)

// ============================================================================
// Training Errors
// ============================================================================

var (
	ErrTraining           = errors.New("training failed")
	ErrTrainerUnavailable = errors.New("training engine is not available")
)
