package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"transit-classifier-service/internal/core/domain"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchObject(ctx context.Context, bucket, key, dst string) error {
	args := m.Called(ctx, bucket, key, dst)
	return args.Error(0)
}

func copyDefaultModel(t *testing.T, dst string) {
	t.Helper()
	data, err := os.ReadFile("testdata/default_model.json")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, data, 0o644))
}

func TestStore_LoadCaches(t *testing.T) {
	s, err := NewStore(Config{CacheSize: 2}, nil)
	require.NoError(t, err)
	defer s.Close()

	a1, err := s.Load(context.Background(), "testdata/default_model.json")
	require.NoError(t, err)
	a2, err := s.Load(context.Background(), "testdata/default_model.json")
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.True(t, s.Cached("testdata/default_model.json"))

	s.Evict("testdata/default_model.json")
	assert.False(t, s.Cached("testdata/default_model.json"))
}

func TestStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(Config{CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(context.Background(), filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	pkl := filepath.Join(dir, "model.pkl")
	require.NoError(t, os.WriteFile(pkl, []byte("not a pickle"), 0o644))
	_, err = s.Load(context.Background(), pkl)
	assert.ErrorIs(t, err, domain.ErrInference)

	onnx := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(onnx, []byte{0x08}, 0o644))
	_, err = s.Load(context.Background(), onnx)
	assert.ErrorIs(t, err, domain.ErrInference)

	_, err = s.Load(context.Background(), "s3://models/a.json")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestStore_LoadFromObjectStore(t *testing.T) {
	cacheDir := t.TempDir()
	fetcher := new(mockFetcher)
	want := filepath.Join(cacheDir, "models", "kepler", "gbt.json")
	fetcher.On("FetchObject", mock.Anything, "models", "kepler/gbt.json", want).
		Run(func(args mock.Arguments) { copyDefaultModel(t, args.String(3)) }).
		Return(nil).Once()

	s, err := NewStore(Config{CacheDir: cacheDir}, fetcher)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(context.Background(), "s3://models/kepler/gbt.json")
	require.NoError(t, err)

	// Already downloaded: evicting from memory must not fetch again.
	s.Evict("s3://models/kepler/gbt.json")
	_, err = s.Load(context.Background(), "s3://models/kepler/gbt.json")
	require.NoError(t, err)
	fetcher.AssertExpectations(t)
}

func TestStore_LoadFromObjectStore_Missing(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("FetchObject", mock.Anything, "models", "nope.json", mock.Anything).Return(domain.ErrArtifactNotFound)

	s, err := NewStore(Config{CacheDir: t.TempDir()}, fetcher)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(context.Background(), "s3://models/nope.json")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestStore_LRUEviction(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "c.json"} {
		copyDefaultModel(t, filepath.Join(dir, name))
	}

	s, err := NewStore(Config{CacheSize: 2}, nil)
	require.NoError(t, err)
	defer s.Close()

	for _, name := range []string{"a.json", "b.json", "c.json"} {
		_, err := s.Load(context.Background(), filepath.Join(dir, name))
		require.NoError(t, err)
	}
	assert.False(t, s.Cached(filepath.Join(dir, "a.json")))
	assert.True(t, s.Cached(filepath.Join(dir, "c.json")))
}

func TestStore_WatchEvictsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	copyDefaultModel(t, path)

	s, err := NewStore(Config{Watch: true}, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(context.Background(), path)
	require.NoError(t, err)
	require.True(t, s.Cached(path))

	copyDefaultModel(t, path)

	assert.Eventually(t, func() bool { return !s.Cached(path) }, 2*time.Second, 10*time.Millisecond)
}
