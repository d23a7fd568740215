package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/ports/output"
)

// ArtifactResolver maps an optional model id to an artifact path.
type ArtifactResolver interface {
	ResolveArtifactPath(ctx context.Context, id *int64) (string, error)
}

// DispatcherConfig bounds inference work.
type DispatcherConfig struct {
	Workers int
	Timeout time.Duration
}

// PredictionDispatcher resolves a model, loads its artifact and runs inference
// on a bounded pool of workers.
type PredictionDispatcher struct {
	resolver ArtifactResolver
	store    ports.ArtifactStore
	sem      *semaphore.Weighted
	workers  int
	timeout  time.Duration
}

func NewPredictionDispatcher(resolver ArtifactResolver, store ports.ArtifactStore, cfg DispatcherConfig) *PredictionDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &PredictionDispatcher{
		resolver: resolver,
		store:    store,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		workers:  cfg.Workers,
		timeout:  cfg.Timeout,
	}
}

// PredictOne classifies a single record with the model identified by id, or
// with the active default when id is nil.
func (d *PredictionDispatcher) PredictOne(ctx context.Context, id *int64, rec domain.FeatureRecord) (*domain.Prediction, error) {
	artifact, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, artifact, rec)
}

// PredictBatch classifies every record of seq with one loaded artifact. A load
// failure fails the whole batch; after that each row succeeds or fails on its
// own. Results are returned in row order.
func (d *PredictionDispatcher) PredictBatch(ctx context.Context, id *int64, seq iter.Seq2[int, domain.FeatureRecord]) ([]domain.RowPrediction, error) {
	artifact, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		rows    []int
		records []domain.FeatureRecord
	)
	for row, rec := range seq {
		rows = append(rows, row)
		records = append(records, rec)
	}

	results := make([]domain.RowPrediction, len(records))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i := range records {
		g.Go(func() error {
			pred, err := d.run(ctx, artifact, records[i])
			results[i] = domain.RowPrediction{Row: rows[i], Prediction: pred, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// load resolves id and loads its artifact under the timeout and inside a
// pool slot.
func (d *PredictionDispatcher) load(ctx context.Context, id *int64) (ports.Artifact, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	path, err := d.resolver.ResolveArtifactPath(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		artifact ports.Artifact
		loadErr  error
	)
	if err := d.inSlot(ctx, func(ctx context.Context) {
		artifact, loadErr = d.store.Load(ctx, path)
	}); err != nil {
		return nil, err
	}
	if loadErr != nil {
		if errors.Is(loadErr, domain.ErrArtifactNotFound) || errors.Is(loadErr, domain.ErrInference) {
			return nil, loadErr
		}
		return nil, fmt.Errorf("%w: load %s: %v", domain.ErrInference, path, loadErr)
	}
	return artifact, nil
}

// run executes one inference call inside a pool slot and under the timeout.
func (d *PredictionDispatcher) run(ctx context.Context, artifact ports.Artifact, rec domain.FeatureRecord) (*domain.Prediction, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var (
		class int
		probs [2]float64
		err   error
	)
	if err := d.inSlot(ctx, func(ctx context.Context) {
		class, probs, err = artifact.Predict(ctx, rec)
	}); err != nil {
		return nil, err
	}

	if err != nil {
		if errors.Is(err, domain.ErrInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInference, err)
	}
	pred, err := domain.NewPrediction(class, probs)
	if err != nil {
		return nil, err
	}
	return &pred, nil
}

func (d *PredictionDispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return context.WithCancel(ctx)
}

// inSlot runs fn on its own goroutine while holding one pool slot. The slot
// is released when fn returns, even if ctx expired first, so work that ignores
// ctx still counts against the pool. fn's results may only be read when inSlot
// returns nil.
func (d *PredictionDispatcher) inSlot(ctx context.Context, fn func(ctx context.Context)) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return d.ctxErr(ctx, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer d.sem.Release(1)
		fn(ctx)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return d.ctxErr(ctx, ctx.Err())
	}
}

func (d *PredictionDispatcher) ctxErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.WithField("timeout", d.timeout).Warn("inference timed out")
		return fmt.Errorf("%w after %s", domain.ErrInferenceTimeout, d.timeout)
	}
	return err
}
