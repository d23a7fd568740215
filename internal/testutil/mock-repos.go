package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/ports/output"
)

// MockCatalogRepo is a mock of CatalogRepository.
type MockCatalogRepo struct {
	mock.Mock
}

func (m *MockCatalogRepo) Create(ctx context.Context, entry domain.NewCatalogEntry) (int64, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCatalogRepo) GetByID(ctx context.Context, id int64) (*domain.CatalogEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CatalogEntry), args.Error(1)
}

func (m *MockCatalogRepo) List(ctx context.Context) ([]*domain.CatalogEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CatalogEntry), args.Error(1)
}

func (m *MockCatalogRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTrainingEngine is a mock of TrainingEngine.
type MockTrainingEngine struct {
	mock.Mock
}

func (m *MockTrainingEngine) Train(ctx context.Context, params domain.Hyperparameters) (*ports.TrainingResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.TrainingResult), args.Error(1)
}

func (m *MockTrainingEngine) IsAvailable() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockArtifactStore is a mock of ArtifactStore.
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Load(ctx context.Context, path string) (ports.Artifact, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.Artifact), args.Error(1)
}

// MockObjectReader is a mock of ObjectReader.
type MockObjectReader struct {
	mock.Mock
}

func (m *MockObjectReader) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// StubArtifact answers every prediction with a fixed class and probabilities,
// or runs Fn when set.
type StubArtifact struct {
	Class int
	Probs [2]float64
	Err   error
	Fn    func(ctx context.Context, rec domain.FeatureRecord) (int, [2]float64, error)
}

func (a *StubArtifact) Predict(ctx context.Context, rec domain.FeatureRecord) (int, [2]float64, error) {
	if a.Fn != nil {
		return a.Fn(ctx, rec)
	}
	return a.Class, a.Probs, a.Err
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
