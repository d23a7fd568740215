package trainer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-classifier-service/internal/config"
	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/testutil"
)

func gbtbParams() domain.Hyperparameters {
	return domain.NewGBTBHyperparameters(domain.GBTBParams{
		LearningRate: testutil.Ptr(0.1),
		NEstimators:  testutil.Ptr(300),
		L1Reg:        testutil.Ptr(0.5),
	})
}

func TestHTTPTrainer_Train(t *testing.T) {
	var got trainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/train", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"artifact_name":"xgboost_20251006.json","accuracy":0.88,"roc_auc":0.93,"pr_auc":0.9}`))
	}))
	defer srv.Close()

	tr := NewHTTPTrainer(&config.TrainerConfig{URL: srv.URL, Timeout: time.Second})
	res, err := tr.Train(context.Background(), gbtbParams())
	require.NoError(t, err)

	assert.Equal(t, "xgboost", got.ModelType)
	assert.Equal(t, 0.5, got.Params["reg_alpha"])
	assert.Equal(t, 300.0, got.Params["n_estimators"])
	assert.Equal(t, "xgboost_20251006.json", res.ArtifactName)
	assert.Equal(t, domain.Metrics{Accuracy: 0.88, ROCAUC: 0.93, PRAUC: 0.9}, res.Metrics())
}

func TestHTTPTrainer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		err     error
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "out of memory", http.StatusInternalServerError) },
			err:     domain.ErrTraining,
		},
		{
			name:    "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) },
			err:     domain.ErrTraining,
		},
		{
			name:    "no artifact",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"accuracy":0.5}`)) },
			err:     domain.ErrTraining,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			tr := NewHTTPTrainer(&config.TrainerConfig{URL: srv.URL})
			_, err := tr.Train(context.Background(), gbtbParams())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestHTTPTrainer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTPTrainer(&config.TrainerConfig{URL: url})
	assert.False(t, tr.IsAvailable())

	_, err := tr.Train(context.Background(), gbtbParams())
	assert.ErrorIs(t, err, domain.ErrTrainerUnavailable)
}

func TestHTTPTrainer_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, NewHTTPTrainer(&config.TrainerConfig{URL: srv.URL}).IsAvailable())
	assert.False(t, NewHTTPTrainer(&config.TrainerConfig{}).IsAvailable())
}
