package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/ports/output"
)

// RegistryConfig holds the static settings of the registry.
type RegistryConfig struct {
	// BaseModelPath is the artifact used when no model id is given and no
	// other model has been activated.
	BaseModelPath string
	// ArtifactDir is prepended to relative artifact names reported by the
	// training engine.
	ArtifactDir  string
	Policy       domain.ResolvePolicy
	TrainTimeout time.Duration
}

type RegistryService struct {
	repo    ports.CatalogRepository
	trainer ports.TrainingEngine
	cfg     RegistryConfig

	active atomic.Pointer[domain.ActiveModel]
}

func NewRegistryService(repo ports.CatalogRepository, trainer ports.TrainingEngine, cfg RegistryConfig) *RegistryService {
	if cfg.Policy == "" {
		cfg.Policy = domain.ResolveFallbackToDefault
	}
	s := &RegistryService{repo: repo, trainer: trainer, cfg: cfg}
	s.ResetActiveModel()
	return s
}

// Create validates and stores a trained model. The family row and the catalog
// row are written atomically by the repository.
func (s *RegistryService) Create(ctx context.Context, params domain.Hyperparameters, name, artifactPath string, metrics domain.Metrics) (int64, error) {
	entry := domain.NewCatalogEntry{
		Name:            name,
		ArtifactPath:    artifactPath,
		Metrics:         metrics,
		Hyperparameters: params,
	}
	if entry.Name == "" {
		entry.Name = filepath.Base(artifactPath)
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	id, err := s.repo.Create(ctx, entry)
	if err != nil {
		if errors.Is(err, domain.ErrRegistryWrite) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrRegistryWrite, err)
	}

	log.WithFields(log.Fields{
		"model_id": id,
		"family":   params.Family,
		"path":     artifactPath,
	}).Info("model registered")
	return id, nil
}

// Get returns one catalog entry
func (s *RegistryService) Get(ctx context.Context, id int64) (*domain.CatalogEntry, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidModelID
	}
	return s.repo.GetByID(ctx, id)
}

// List returns all catalog entries in insertion order
func (s *RegistryService) List(ctx context.Context) ([]*domain.CatalogEntry, error) {
	return s.repo.List(ctx)
}

// ResolveArtifactPath maps an optional model id to an artifact path. A nil id
// yields the active default. Unknown ids follow the configured policy.
func (s *RegistryService) ResolveArtifactPath(ctx context.Context, id *int64) (string, error) {
	if id == nil {
		return s.ActiveModel().ArtifactPath, nil
	}

	entry, err := s.lookup(ctx, *id)
	if err == nil {
		return entry.ArtifactPath, nil
	}
	if !errors.Is(err, domain.ErrModelNotFound) {
		return "", err
	}

	if s.cfg.Policy == domain.ResolveErrorOnMiss {
		return "", err
	}
	fallback := s.ActiveModel().ArtifactPath
	log.WithField("model_id", *id).WithField("fallback", fallback).Warn("unknown model id, using default model")
	return fallback, nil
}

func (s *RegistryService) lookup(ctx context.Context, id int64) (*domain.CatalogEntry, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id %d", domain.ErrModelNotFound, id)
	}
	return s.repo.GetByID(ctx, id)
}

// RegisterModel trains a model with the given hyperparameters and records it
// in the catalog.
func (s *RegistryService) RegisterModel(ctx context.Context, params domain.Hyperparameters, name string) (int64, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if s.trainer == nil || !s.trainer.IsAvailable() {
		return 0, domain.ErrTrainerUnavailable
	}

	if s.cfg.TrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TrainTimeout)
		defer cancel()
	}

	started := time.Now()
	result, err := s.trainer.Train(ctx, params)
	if err != nil {
		if errors.Is(err, domain.ErrTraining) || errors.Is(err, domain.ErrTrainerUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrTraining, err)
	}
	if result == nil || strings.TrimSpace(result.ArtifactName) == "" {
		return 0, fmt.Errorf("%w: engine returned no artifact", domain.ErrTraining)
	}

	log.WithFields(log.Fields{
		"family":     params.Family,
		"artifact":   result.ArtifactName,
		"accuracy":   result.Accuracy,
		"duration_s": time.Since(started).Seconds(),
	}).Info("training finished")

	return s.Create(ctx, params, name, s.artifactPath(result.ArtifactName), result.Metrics())
}

func (s *RegistryService) artifactPath(name string) string {
	if strings.HasPrefix(name, "s3://") || filepath.IsAbs(name) || s.cfg.ArtifactDir == "" {
		return name
	}
	return filepath.Join(s.cfg.ArtifactDir, name)
}

// ============================================================================
// Active Model
// ============================================================================

// ActiveModel returns the model used for requests without a model id
func (s *RegistryService) ActiveModel() domain.ActiveModel {
	return *s.active.Load()
}

// SetActiveModel makes a catalog entry the default. Unknown ids always fail,
// regardless of the resolve policy.
func (s *RegistryService) SetActiveModel(ctx context.Context, id int64) (domain.ActiveModel, error) {
	if id <= 0 {
		return domain.ActiveModel{}, domain.ErrInvalidModelID
	}
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.ActiveModel{}, err
	}
	active := &domain.ActiveModel{ModelID: &entry.ID, ArtifactPath: entry.ArtifactPath}
	s.active.Store(active)
	log.WithField("model_id", id).WithField("path", entry.ArtifactPath).Info("active model changed")
	return *active, nil
}

// SetActivePath makes an artifact that is not in the catalog the default.
func (s *RegistryService) SetActivePath(path string) (domain.ActiveModel, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.ActiveModel{}, domain.ErrInvalidArtifactPath
	}
	active := &domain.ActiveModel{ArtifactPath: path, IsBase: path == s.cfg.BaseModelPath}
	s.active.Store(active)
	log.WithField("path", path).Info("active model changed")
	return *active, nil
}

// ResetActiveModel restores the configured base model
func (s *RegistryService) ResetActiveModel() domain.ActiveModel {
	active := &domain.ActiveModel{ArtifactPath: s.cfg.BaseModelPath, IsBase: true}
	s.active.Store(active)
	return *active
}

// Ping checks the catalog store
func (s *RegistryService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
