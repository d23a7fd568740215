package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"transit-classifier-service/internal/adapters/secondary/objectstore"
	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/ports/output"
)

// ObjectFetcher downloads an object to a local file.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, key, dst string) error
}

// Config configures the artifact store
type Config struct {
	CacheSize int
	// CacheDir receives artifacts downloaded from object storage.
	CacheDir string
	// ONNX enables .onnx artifacts; the runtime must be initialized.
	ONNX bool
	// Watch evicts cached artifacts when their file changes on disk.
	Watch bool
}

// Store loads artifacts from local files or object storage and keeps the
// most recently used ones in memory.
type Store struct {
	cfg     Config
	fetcher ObjectFetcher
	cache   *lru.Cache[string, ports.Artifact]
	group   singleflight.Group

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	byFile  map[string][]string // local file -> cache keys
	watched map[string]bool     // watched directories
	done    chan struct{}
}

var _ ports.ArtifactStore = (*Store)(nil)

// NewStore creates a store. fetcher may be nil when object storage is not
// configured.
func NewStore(cfg Config, fetcher ObjectFetcher) (*Store, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 8
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "transit-artifacts")
	}

	cache, err := lru.NewWithEvict[string, ports.Artifact](cfg.CacheSize, func(path string, a ports.Artifact) {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.WithError(err).WithField("path", path).Warn("failed to release artifact")
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}

	s := &Store{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   cache,
		byFile:  map[string][]string{},
		watched: map[string]bool{},
		done:    make(chan struct{}),
	}

	if cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create artifact watcher: %w", err)
		}
		s.watcher = w
		go s.watch()
	}
	return s, nil
}

// Load returns the artifact at path, loading it on a cache miss. Concurrent
// misses for the same path share one load.
func (s *Store) Load(ctx context.Context, path string) (ports.Artifact, error) {
	if a, ok := s.cache.Get(path); ok {
		return a, nil
	}

	v, err, _ := s.group.Do(path, func() (any, error) {
		if a, ok := s.cache.Get(path); ok {
			return a, nil
		}
		local, err := s.localPath(ctx, path)
		if err != nil {
			return nil, err
		}
		a, err := s.open(local)
		if err != nil {
			return nil, err
		}
		s.cache.Add(path, a)
		s.track(local, path)
		log.WithField("path", path).Info("artifact loaded")
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ports.Artifact), nil
}

// Evict drops a cached artifact
func (s *Store) Evict(path string) {
	s.cache.Remove(path)
}

// Cached reports whether path is currently held in memory.
func (s *Store) Cached(path string) bool {
	return s.cache.Contains(path)
}

// Close stops the watcher and releases every cached artifact.
func (s *Store) Close() error {
	var err error
	if s.watcher != nil {
		close(s.done)
		err = s.watcher.Close()
	}
	s.cache.Purge()
	return err
}

// localPath resolves path to a file on disk, downloading object store
// artifacts into the cache directory first.
func (s *Store) localPath(ctx context.Context, path string) (string, error) {
	if !objectstore.IsURI(path) {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, path)
			}
			return "", fmt.Errorf("%w: stat %s: %v", domain.ErrInference, path, err)
		}
		return path, nil
	}

	bucket, key, err := objectstore.ParseURI(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrArtifactNotFound, err)
	}
	local := filepath.Join(s.cfg.CacheDir, bucket, filepath.FromSlash(key))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if s.fetcher == nil {
		return "", fmt.Errorf("%w: object storage is not configured for %s", domain.ErrArtifactNotFound, path)
	}
	if err := s.fetcher.FetchObject(ctx, bucket, key, local); err != nil {
		return "", err
	}
	return local, nil
}

func (s *Store) open(local string) (ports.Artifact, error) {
	switch strings.ToLower(filepath.Ext(local)) {
	case ".json":
		f, err := os.Open(local)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", domain.ErrInference, local, err)
		}
		defer f.Close()
		return ReadForest(f)
	case ".onnx":
		if !s.cfg.ONNX {
			return nil, fmt.Errorf("%w: onnx runtime is not configured", domain.ErrInference)
		}
		return OpenONNX(local)
	}
	return nil, fmt.Errorf("%w: unsupported artifact format %q", domain.ErrInference, filepath.Ext(local))
}

// ============================================================================
// Invalidation
// ============================================================================

func (s *Store) track(local, key string) {
	if s.watcher == nil {
		return
	}
	abs, err := filepath.Abs(local)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.byFile[abs], key) {
		s.byFile[abs] = append(s.byFile[abs], key)
	}

	dir := filepath.Dir(abs)
	if s.watched[dir] {
		return
	}
	if err := s.watcher.Add(dir); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("failed to watch artifact directory")
		return
	}
	s.watched[dir] = true
}

func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.invalidate(ev.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("artifact watcher error")
		}
	}
}

func (s *Store) invalidate(file string) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return
	}

	s.mu.Lock()
	keys := s.byFile[abs]
	delete(s.byFile, abs)
	s.mu.Unlock()

	for _, k := range keys {
		if s.cache.Remove(k) {
			log.WithField("path", k).Info("artifact changed on disk, evicted")
		}
	}
}
