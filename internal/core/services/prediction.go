package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"transit-classifier-service/internal/core/domain"
)

// BatchResult is the outcome of classifying an uploaded table.
type BatchResult struct {
	Count           int
	MissingFeatures []domain.FeatureKey
	Predictions     []domain.RowPrediction
}

// Failed counts the rows that could not be classified
func (r *BatchResult) Failed() int {
	n := 0
	for _, p := range r.Predictions {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// SinglePrediction is the outcome of classifying one JSON feature object.
type SinglePrediction struct {
	domain.Prediction
	MissingFeatures []domain.FeatureKey
}

var tableExtensions = []string{".csv", ".tsv", ".txt"}

// PredictionService handles the two request shapes: one JSON feature object
// and one uploaded delimited table.
type PredictionService struct {
	ingest     *IngestionService
	dispatcher *PredictionDispatcher
}

func NewPredictionService(ingest *IngestionService, dispatcher *PredictionDispatcher) *PredictionService {
	return &PredictionService{ingest: ingest, dispatcher: dispatcher}
}

// Predict classifies one feature object.
func (s *PredictionService) Predict(ctx context.Context, modelID *int64, features map[string]any) (*SinglePrediction, error) {
	rec, missing, err := s.ingest.RecordFromMap(features)
	if err != nil {
		return nil, err
	}
	pred, err := s.dispatcher.PredictOne(ctx, modelID, rec)
	if err != nil {
		return nil, err
	}
	return &SinglePrediction{Prediction: *pred, MissingFeatures: missing}, nil
}

// PredictCSV classifies every row of an uploaded table.
func (s *PredictionService) PredictCSV(ctx context.Context, modelID *int64, filename string, blob []byte) (*BatchResult, error) {
	if !isTableFile(filename) {
		return nil, fmt.Errorf("%w: got %q", domain.ErrNotCSV, filepath.Base(filename))
	}

	table, err := s.ingest.Ingest(blob)
	if err != nil {
		return nil, err
	}

	preds, err := s.dispatcher.PredictBatch(ctx, modelID, table.Records())
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Count:           len(preds),
		MissingFeatures: table.Missing(),
		Predictions:     preds,
	}
	log.WithFields(log.Fields{
		"file":    filepath.Base(filename),
		"rows":    result.Count,
		"failed":  result.Failed(),
		"missing": len(result.MissingFeatures),
	}).Info("batch prediction finished")
	return result, nil
}

func isTableFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	for _, e := range tableExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
