// Package sqlcatalog holds the relational mapping of the model catalog shared
// by the SQL backed repositories.
package sqlcatalog

import (
	"fmt"
	"strings"
	"time"

	"transit-classifier-service/internal/core/domain"
)

// SelectEntries reads the catalog rows joined with every family table. Callers
// append their own WHERE and ORDER BY clauses.
const SelectEntries = `
	SELECT m.id, m.name, m.path, m.model_family, m.accuracy, m.roc_auc, m.pr_auc, m.created_at,
		   m.gbt_a_params_id, a.learning_rate, a.n_estimators, a.num_leaves, a.max_depth,
		   a.l1_reg, a.l2_reg, a.feature_fraction, a.random_state,
		   m.gbt_b_params_id, b.learning_rate, b.n_estimators, b.max_depth, b.subsample,
		   b.colsample_bytree, b.l2_reg, b.l1_reg, b.random_state,
		   m.rf_params_id, r.n_estimators, r.max_depth, r.min_samples_leaf,
		   r.min_samples_split, r.random_state
	FROM model m
	LEFT JOIN gbt_a_params a ON a.id = m.gbt_a_params_id
	LEFT JOIN gbt_b_params b ON b.id = m.gbt_b_params_id
	LEFT JOIN rf_params r ON r.id = m.rf_params_id
`

// Row is one scanned result of SelectEntries.
type Row struct {
	ID        int64
	Name      string
	Path      string
	Family    string
	Accuracy  float64
	ROCAUC    float64
	PRAUC     float64
	CreatedAt time.Time

	GBTAID *int64
	GBTA   domain.GBTAParams
	GBTBID *int64
	GBTB   domain.GBTBParams
	RFID   *int64
	RF     domain.RandomForestParams
}

// Dest returns scan destinations in SelectEntries column order.
func (r *Row) Dest() []any {
	return []any{
		&r.ID, &r.Name, &r.Path, &r.Family, &r.Accuracy, &r.ROCAUC, &r.PRAUC, &r.CreatedAt,
		&r.GBTAID, &r.GBTA.LearningRate, &r.GBTA.NEstimators, &r.GBTA.NumLeaves, &r.GBTA.MaxDepth,
		&r.GBTA.L1Reg, &r.GBTA.L2Reg, &r.GBTA.FeatureFraction, &r.GBTA.RandomState,
		&r.GBTBID, &r.GBTB.LearningRate, &r.GBTB.NEstimators, &r.GBTB.MaxDepth, &r.GBTB.Subsample,
		&r.GBTB.ColsampleBytree, &r.GBTB.L2Reg, &r.GBTB.L1Reg, &r.GBTB.RandomState,
		&r.RFID, &r.RF.NEstimators, &r.RF.MaxDepth, &r.RF.MinSamplesLeaf,
		&r.RF.MinSamplesSplit, &r.RF.RandomState,
	}
}

// Entry rebuilds the domain entry, picking the hyperparameter variant named
// by the family tag.
func (r *Row) Entry() (*domain.CatalogEntry, error) {
	family := domain.ModelFamily(r.Family)
	hp := domain.Hyperparameters{Family: family}

	switch family {
	case domain.FamilyGBTA:
		if r.GBTAID == nil {
			return nil, fmt.Errorf("model %d: family %s without parameter row", r.ID, family)
		}
		p := r.GBTA
		hp.GBTA = &p
	case domain.FamilyGBTB:
		if r.GBTBID == nil {
			return nil, fmt.Errorf("model %d: family %s without parameter row", r.ID, family)
		}
		p := r.GBTB
		hp.GBTB = &p
	case domain.FamilyRandomForest:
		if r.RFID == nil {
			return nil, fmt.Errorf("model %d: family %s without parameter row", r.ID, family)
		}
		p := r.RF
		hp.RF = &p
	default:
		return nil, fmt.Errorf("model %d: %w: %q", r.ID, domain.ErrInvalidFamily, r.Family)
	}

	return &domain.CatalogEntry{
		ID:              r.ID,
		Name:            r.Name,
		ArtifactPath:    r.Path,
		Family:          family,
		Metrics:         domain.Metrics{Accuracy: r.Accuracy, ROCAUC: r.ROCAUC, PRAUC: r.PRAUC},
		CreatedAt:       r.CreatedAt,
		Hyperparameters: hp,
	}, nil
}

// FamilyInsert describes the hyperparameter row of one entry.
type FamilyInsert struct {
	Table    string
	FKColumn string
	Columns  []string
	Values   []any
}

// SQL renders the INSERT statement with placeholders produced by ph(i), i
// starting at 1.
func (f FamilyInsert) SQL(ph func(i int) string) string {
	marks := make([]string, len(f.Columns))
	for i := range marks {
		marks[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", f.Table, strings.Join(f.Columns, ", "), strings.Join(marks, ", "))
}

// FamilyRow maps the active variant onto its table.
func FamilyRow(h domain.Hyperparameters) (FamilyInsert, error) {
	switch h.Family {
	case domain.FamilyGBTA:
		if p := h.GBTA; p != nil {
			return FamilyInsert{
				Table:    "gbt_a_params",
				FKColumn: "gbt_a_params_id",
				Columns:  []string{"learning_rate", "n_estimators", "num_leaves", "max_depth", "l1_reg", "l2_reg", "feature_fraction", "random_state"},
				Values:   []any{p.LearningRate, p.NEstimators, p.NumLeaves, p.MaxDepth, p.L1Reg, p.L2Reg, p.FeatureFraction, p.RandomState},
			}, nil
		}
	case domain.FamilyGBTB:
		if p := h.GBTB; p != nil {
			return FamilyInsert{
				Table:    "gbt_b_params",
				FKColumn: "gbt_b_params_id",
				Columns:  []string{"learning_rate", "n_estimators", "max_depth", "subsample", "colsample_bytree", "l2_reg", "l1_reg", "random_state"},
				Values:   []any{p.LearningRate, p.NEstimators, p.MaxDepth, p.Subsample, p.ColsampleBytree, p.L2Reg, p.L1Reg, p.RandomState},
			}, nil
		}
	case domain.FamilyRandomForest:
		if p := h.RF; p != nil {
			return FamilyInsert{
				Table:    "rf_params",
				FKColumn: "rf_params_id",
				Columns:  []string{"n_estimators", "max_depth", "min_samples_leaf", "min_samples_split", "random_state"},
				Values:   []any{p.NEstimators, p.MaxDepth, p.MinSamplesLeaf, p.MinSamplesSplit, p.RandomState},
			}, nil
		}
	default:
		return FamilyInsert{}, fmt.Errorf("%w: %q", domain.ErrInvalidFamily, h.Family)
	}
	return FamilyInsert{}, fmt.Errorf("%w: family %s has no parameters", domain.ErrInvalidHyperparameters, h.Family)
}

// InsertModel renders the catalog row INSERT for the given foreign key column.
func InsertModel(fkColumn string, ph func(i int) string) string {
	return fmt.Sprintf(
		"INSERT INTO model (name, path, model_family, accuracy, roc_auc, pr_auc, created_at, %s) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
		fkColumn, ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7), ph(8),
	)
}
