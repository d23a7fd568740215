package dto

import (
	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/services"
)

type PredictRequest struct {
	ModelID  *int64         `json:"model_id"`
	Features map[string]any `json:"features" binding:"required"`
}

type PredictionResponse struct {
	Verdict       string             `json:"verdict"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

type PredictResponse struct {
	PredictionResponse
	MissingFeatures []string `json:"missing_features"`
}

type BatchRowResponse struct {
	Row int `json:"row"`
	*PredictionResponse
	Error string `json:"error,omitempty"`
}

type BatchPredictResponse struct {
	Count           int                `json:"count"`
	Failed          int                `json:"failed"`
	MissingFeatures []string           `json:"missing_features"`
	Predictions     []BatchRowResponse `json:"predictions"`
}

func toPredictionResponse(p domain.Prediction) PredictionResponse {
	return PredictionResponse{
		Verdict:    string(p.Verdict),
		Confidence: p.Confidence,
		Probabilities: map[string]float64{
			string(domain.VerdictForClass(0)): p.Probabilities[0],
			string(domain.VerdictForClass(1)): p.Probabilities[1],
		},
	}
}

func toKeys(keys []domain.FeatureKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, string(k))
	}
	return out
}

func ToPredictResponse(p *services.SinglePrediction) PredictResponse {
	return PredictResponse{
		PredictionResponse: toPredictionResponse(p.Prediction),
		MissingFeatures:    toKeys(p.MissingFeatures),
	}
}

func ToBatchPredictResponse(r *services.BatchResult) BatchPredictResponse {
	rows := make([]BatchRowResponse, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		row := BatchRowResponse{Row: p.Row}
		if p.Err != nil {
			row.Error = p.Err.Error()
		} else {
			pr := toPredictionResponse(*p.Prediction)
			row.PredictionResponse = &pr
		}
		rows = append(rows, row)
	}
	return BatchPredictResponse{
		Count:           r.Count,
		Failed:          r.Failed(),
		MissingFeatures: toKeys(r.MissingFeatures),
		Predictions:     rows,
	}
}
