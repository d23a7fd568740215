package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"transit-classifier-service/internal/config"
	"transit-classifier-service/internal/core/domain"
	ports "transit-classifier-service/internal/core/ports/output"
)

type trainRequest struct {
	ModelType string         `json:"model_type"`
	Params    map[string]any `json:"params"`
}

type httpTrainer struct {
	baseURL string
	client  *http.Client
	enabled bool
}

// NewHTTPTrainer creates a training engine backed by a remote trainer service
func NewHTTPTrainer(cfg *config.TrainerConfig) ports.TrainingEngine {
	if cfg.URL == "" {
		return &httpTrainer{enabled: false}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}

	return &httpTrainer{
		baseURL: cfg.URL,
		enabled: true,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *httpTrainer) IsAvailable() bool {
	if !t.enabled {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/healthz", nil)
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (t *httpTrainer) Train(ctx context.Context, params domain.Hyperparameters) (*ports.TrainingResult, error) {
	if !t.enabled {
		return nil, domain.ErrTrainerUnavailable
	}

	body, err := json.Marshal(trainRequest{
		ModelType: params.Family.EngineName(),
		Params:    params.EngineParams(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrTraining, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.baseURL+"/train", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTraining, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTraining, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTrainerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: trainer returned %d: %s", domain.ErrTraining, resp.StatusCode, bytes.TrimSpace(msg))
	}

	return decodeResult(resp.Body)
}

func decodeResult(r io.Reader) (*ports.TrainingResult, error) {
	var res ports.TrainingResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", domain.ErrTraining, err)
	}
	if res.ArtifactName == "" {
		return nil, fmt.Errorf("%w: result has no artifact_name", domain.ErrTraining)
	}
	return &res, nil
}

// Ensure interface compliance
var _ ports.TrainingEngine = (*httpTrainer)(nil)
