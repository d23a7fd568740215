package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/testutil"
)

func openTestRepo(t *testing.T) *CatalogRepository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func countRows(t *testing.T, repo *CatalogRepository, table string) int {
	t.Helper()
	var n int
	require.NoError(t, repo.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// ============================================================================
// Create / List round trip
// ============================================================================

func TestCatalogRepository_CreateAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	gbta := domain.NewGBTAHyperparameters(domain.GBTAParams{
		LearningRate:    testutil.Ptr(0.05),
		NEstimators:     testutil.Ptr(500),
		NumLeaves:       testutil.Ptr(31),
		L1Reg:           testutil.Ptr(0.1),
		FeatureFraction: testutil.Ptr(0.8),
		RandomState:     testutil.Ptr(42),
	})
	gbtb := domain.NewGBTBHyperparameters(domain.GBTBParams{
		LearningRate:    testutil.Ptr(0.1),
		MaxDepth:        testutil.Ptr(6),
		Subsample:       testutil.Ptr(0.9),
		ColsampleBytree: testutil.Ptr(0.7),
		L2Reg:           testutil.Ptr(1.0),
	})
	rf := domain.NewRandomForestHyperparameters(domain.RandomForestParams{
		NEstimators:     testutil.Ptr(300),
		MinSamplesSplit: testutil.Ptr(4),
	})

	inputs := []domain.NewCatalogEntry{
		{Name: "lgbm", ArtifactPath: "/models/lgbm.json", Metrics: domain.Metrics{Accuracy: 0.91, ROCAUC: 0.95, PRAUC: 0.94}, Hyperparameters: gbta},
		{Name: "xgb", ArtifactPath: "/models/xgb.json", Metrics: domain.Metrics{Accuracy: 0.89}, Hyperparameters: gbtb},
		{Name: "forest", ArtifactPath: "s3://models/rf.onnx", Hyperparameters: rf},
	}

	var ids []int64
	for _, in := range inputs {
		id, err := repo.Create(ctx, in)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, e := range entries {
		assert.Equal(t, ids[i], e.ID)
		assert.Equal(t, inputs[i].Name, e.Name)
		assert.Equal(t, inputs[i].ArtifactPath, e.ArtifactPath)
		assert.Equal(t, inputs[i].Metrics, e.Metrics)
		assert.Equal(t, inputs[i].Hyperparameters, e.Hyperparameters)
		assert.Equal(t, inputs[i].Hyperparameters.Family, e.Family)
		assert.False(t, e.CreatedAt.IsZero())
	}

	// Unset fields stay unset.
	assert.Nil(t, entries[0].Hyperparameters.GBTA.MaxDepth)
	assert.Nil(t, entries[2].Hyperparameters.RF.RandomState)
}

func TestCatalogRepository_GetByID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rf := domain.NewRandomForestHyperparameters(domain.RandomForestParams{MaxDepth: testutil.Ptr(12)})
	id, err := repo.Create(ctx, domain.NewCatalogEntry{Name: "rf", ArtifactPath: "/m/rf.json", Hyperparameters: rf})
	require.NoError(t, err)

	entry, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.FamilyRandomForest, entry.Family)
	assert.Equal(t, 12, *entry.Hyperparameters.RF.MaxDepth)
	assert.Nil(t, entry.Hyperparameters.GBTA)
	assert.Nil(t, entry.Hyperparameters.GBTB)

	_, err = repo.GetByID(ctx, id+100)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}

func TestCatalogRepository_ListEmpty(t *testing.T) {
	repo := openTestRepo(t)

	entries, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

// ============================================================================
// Atomicity
// ============================================================================

func TestCatalogRepository_Create_RollsBackParamsOnCatalogFailure(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	// Without the catalog table the second insert of the transaction fails.
	_, err := repo.DB().Exec("DROP TABLE model")
	require.NoError(t, err)

	gbta := domain.NewGBTAHyperparameters(domain.GBTAParams{NEstimators: testutil.Ptr(10)})
	_, err = repo.Create(ctx, domain.NewCatalogEntry{Name: "x", ArtifactPath: "/m/x.json", Hyperparameters: gbta})
	assert.ErrorIs(t, err, domain.ErrRegistryWrite)
	assert.Equal(t, 0, countRows(t, repo, "gbt_a_params"))
}

func TestCatalogRepository_Create_RejectsMismatchedFamily(t *testing.T) {
	repo := openTestRepo(t)

	bad := domain.Hyperparameters{Family: domain.FamilyGBTB}
	_, err := repo.Create(context.Background(), domain.NewCatalogEntry{Name: "x", ArtifactPath: "/m/x.json", Hyperparameters: bad})
	assert.ErrorIs(t, err, domain.ErrInvalidHyperparameters)
	assert.Equal(t, 0, countRows(t, repo, "gbt_b_params"))
}

func TestCatalogRepository_CheckConstraint(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.DB().Exec(`INSERT INTO rf_params (n_estimators) VALUES (10)`)
	require.NoError(t, err)
	_, err = repo.DB().Exec(`INSERT INTO model (name, path, model_family, created_at, rf_params_id)
		VALUES ('x', '/x', 'gradient_boosted_trees_a', CURRENT_TIMESTAMP, 1)`)
	assert.Error(t, err)

	// one params row, one model
	_, err = repo.DB().Exec(`INSERT INTO model (name, path, model_family, created_at, rf_params_id)
		VALUES ('rf', '/rf', 'random_forest', CURRENT_TIMESTAMP, 1)`)
	require.NoError(t, err)
	_, err = repo.DB().Exec(`INSERT INTO model (name, path, model_family, created_at, rf_params_id)
		VALUES ('rf-copy', '/rf-copy', 'random_forest', CURRENT_TIMESTAMP, 1)`)
	assert.Error(t, err)
	assert.Equal(t, 1, countRows(t, repo, "model"))
}

func TestCatalogRepository_ConcurrentCreate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rf := domain.NewRandomForestHyperparameters(domain.RandomForestParams{NEstimators: testutil.Ptr(n + 1)})
			_, err := repo.Create(ctx, domain.NewCatalogEntry{Name: "rf", ArtifactPath: "/m/rf.json", Hyperparameters: rf})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, countRows(t, repo, "model"))
	assert.Equal(t, 10, countRows(t, repo, "rf_params"))
}
