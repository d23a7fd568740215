package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"transit-classifier-service/internal/core/domain"
)

type CreateModelRequest struct {
	Family      string          `json:"family" binding:"required"`
	Name        string          `json:"name"`
	Hyperparams json.RawMessage `json:"hyperparams"`

	// Set to register an already trained artifact instead of training one.
	ArtifactPath string          `json:"artifact_path"`
	Metrics      *domain.Metrics `json:"metrics"`
}

type CreateModelResponse struct {
	ModelID int64 `json:"model_id"`
}

type ModelResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Family       string  `json:"family"`
	ArtifactPath string  `json:"artifact_path"`
	Accuracy     float64 `json:"accuracy"`
	ROCAUC       float64 `json:"roc_auc"`
	PRAUC        float64 `json:"pr_auc"`
	CreatedAt    string  `json:"created_at"`
	Hyperparams  any     `json:"hyperparams"`
}

// ToHyperparameters decodes the family specific hyperparameter object.
// Unknown keys are rejected.
func ToHyperparameters(req *CreateModelRequest) (domain.Hyperparameters, error) {
	family, err := domain.ParseModelFamily(req.Family)
	if err != nil {
		return domain.Hyperparameters{}, err
	}

	var h domain.Hyperparameters
	switch family {
	case domain.FamilyGBTA:
		var p domain.GBTAParams
		err = decodeStrict(req.Hyperparams, &p)
		h = domain.NewGBTAHyperparameters(p)
	case domain.FamilyGBTB:
		var p domain.GBTBParams
		err = decodeStrict(req.Hyperparams, &p)
		h = domain.NewGBTBHyperparameters(p)
	case domain.FamilyRandomForest:
		var p domain.RandomForestParams
		err = decodeStrict(req.Hyperparams, &p)
		h = domain.NewRandomForestHyperparameters(p)
	}
	if err != nil {
		return domain.Hyperparameters{}, fmt.Errorf("%w: %v", domain.ErrInvalidHyperparameters, err)
	}
	return h, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func ToModelResponse(e *domain.CatalogEntry) ModelResponse {
	return ModelResponse{
		ID:           e.ID,
		Name:         e.Name,
		Family:       string(e.Family),
		ArtifactPath: e.ArtifactPath,
		Accuracy:     e.Metrics.Accuracy,
		ROCAUC:       e.Metrics.ROCAUC,
		PRAUC:        e.Metrics.PRAUC,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
		Hyperparams:  e.Hyperparameters.Variant(),
	}
}

// ============================================================================
// Active model
// ============================================================================

type SetActiveModelRequest struct {
	ModelID      *int64  `json:"model_id"`
	ArtifactPath *string `json:"artifact_path"`
}

type ActiveModelResponse struct {
	ModelID      *int64 `json:"model_id"`
	ArtifactPath string `json:"artifact_path"`
	IsBase       bool   `json:"is_base"`
}

func ToActiveModelResponse(a domain.ActiveModel) ActiveModelResponse {
	return ActiveModelResponse{ModelID: a.ModelID, ArtifactPath: a.ArtifactPath, IsBase: a.IsBase}
}

type FeaturesResponse struct {
	Features []string            `json:"features"`
	Aliases  map[string][]string `json:"aliases"`
}

func ToFeaturesResponse(aliases domain.FeatureAliasMap) FeaturesResponse {
	resp := FeaturesResponse{
		Features: make([]string, 0, domain.NumFeatures),
		Aliases:  make(map[string][]string, len(aliases)),
	}
	for _, key := range domain.CanonicalFeatures {
		resp.Features = append(resp.Features, string(key))
		resp.Aliases[string(key)] = append([]string{}, aliases[key]...)
	}
	return resp
}
