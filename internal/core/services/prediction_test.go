package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"transit-classifier-service/internal/adapters/secondary/artifact"
	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/testutil"
)

func newPredictionService(t *testing.T, art *testutil.StubArtifact) (*PredictionService, *testutil.MockArtifactStore) {
	t.Helper()
	store := new(testutil.MockArtifactStore)
	store.On("Load", mock.Anything, "/m.json").Return(art, nil).Maybe()
	d := NewPredictionDispatcher(staticResolver{path: "/m.json"}, store, DispatcherConfig{Workers: 2})
	return NewPredictionService(NewIngestionService(nil), d), store
}

func TestPredictionService_Predict(t *testing.T) {
	svc, _ := newPredictionService(t, &testutil.StubArtifact{Class: 1, Probs: [2]float64{0.25, 0.75}})

	pred, err := svc.Predict(context.Background(), nil, map[string]any{"koi_period": 10.0})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictConfirmed, pred.Verdict)
	assert.Equal(t, 0.75, pred.Confidence)
	assert.Len(t, pred.MissingFeatures, domain.NumFeatures-1)
}

func TestPredictionService_Predict_InvalidFeatures(t *testing.T) {
	svc, store := newPredictionService(t, &testutil.StubArtifact{})

	_, err := svc.Predict(context.Background(), nil, map[string]any{"colour": "red"})
	assert.ErrorIs(t, err, domain.ErrInvalidFeatures)
	store.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestPredictionService_PredictCSV(t *testing.T) {
	svc, _ := newPredictionService(t, &testutil.StubArtifact{Class: 0, Probs: [2]float64{0.9, 0.1}})

	blob := []byte("koi_period,koi_depth\n1,2\n3,4\n")
	res, err := svc.PredictCSV(context.Background(), nil, "upload.CSV", blob)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 0, res.Failed())
	assert.Len(t, res.MissingFeatures, domain.NumFeatures-2)
	assert.Equal(t, domain.VerdictFalsePositive, res.Predictions[1].Prediction.Verdict)
}

func TestPredictionService_PredictCSV_Rejections(t *testing.T) {
	svc, store := newPredictionService(t, &testutil.StubArtifact{})

	tests := []struct {
		name     string
		filename string
		blob     string
		err      error
	}{
		{"not csv", "model.pkl", "koi_period\n1\n", domain.ErrNotCSV},
		{"no extension", "upload", "koi_period\n1\n", domain.ErrNotCSV},
		{"header only", "a.csv", "koi_period\n", domain.ErrEmptyOrInvalidTable},
		{"unrecognized", "a.csv", "x,y\n1,2\n", domain.ErrNoRecognizedColumns},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PredictCSV(context.Background(), nil, tt.filename, []byte(tt.blob))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	store.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestPredictionService_PredictCSV_TSV(t *testing.T) {
	svc, _ := newPredictionService(t, &testutil.StubArtifact{Class: 1, Probs: [2]float64{0.4, 0.6}})

	res, err := svc.PredictCSV(context.Background(), nil, "toi.tsv", []byte("pl_orbper\tpl_trandep\n2.1\t900\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestPredictionService_Predict_BaseModelKepler186f(t *testing.T) {
	store, err := artifact.NewStore(artifact.Config{CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer store.Close()

	d := NewPredictionDispatcher(staticResolver{path: "../../../models/base_model.json"}, store, DispatcherConfig{Workers: 1})
	svc := NewPredictionService(NewIngestionService(nil), d)

	features := map[string]any{
		"orbital_period":   129.944,
		"transit_epoch":    170.536,
		"transit_duration": 5.89,
		"transit_depth":    434.0,
		"planet_radius":    1.17,
		"eq_temp":          188.0,
		"insol":            0.29,
		"snr":              16.2,
		"steff":            3788.0,
		"srad":             0.52,
	}

	pred, err := svc.Predict(context.Background(), nil, features)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictConfirmed, pred.Verdict)
	assert.GreaterOrEqual(t, pred.Confidence, 0.5)
	assert.Equal(t, pred.Probabilities[pred.Class], pred.Confidence)
	assert.Equal(t, []domain.FeatureKey{domain.FeatureImpact}, pred.MissingFeatures)
}
