package domain

import (
	"fmt"
	"strings"
	"time"
)

// ModelFamily is the discriminator of the catalog entry. Each family owns one
// hyperparameter table.
type ModelFamily string

const (
	FamilyGBTA         ModelFamily = "gradient_boosted_trees_a"
	FamilyGBTB         ModelFamily = "gradient_boosted_trees_b"
	FamilyRandomForest ModelFamily = "random_forest"
)

// Families lists the supported families.
var Families = []ModelFamily{FamilyGBTA, FamilyGBTB, FamilyRandomForest}

// IsValid checks if the family is supported
func (f ModelFamily) IsValid() bool {
	return f == FamilyGBTA || f == FamilyGBTB || f == FamilyRandomForest
}

// EngineName is the model type understood by the training engine.
func (f ModelFamily) EngineName() string {
	switch f {
	case FamilyGBTA:
		return "light_gbm"
	case FamilyGBTB:
		return "xgboost"
	case FamilyRandomForest:
		return "random_forest"
	}
	return ""
}

// ParseModelFamily accepts canonical family names and the engine spellings
// operators already use ("light_gbm", "xgboost", ...).
func ParseModelFamily(s string) (ModelFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(FamilyGBTA), "gbt_a", "light_gbm", "lightgbm", "lgbm":
		return FamilyGBTA, nil
	case string(FamilyGBTB), "gbt_b", "xgboost", "xgb":
		return FamilyGBTB, nil
	case string(FamilyRandomForest), "randomforest", "rf":
		return FamilyRandomForest, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFamily, s)
}

// ============================================================================
// Hyperparameters
// ============================================================================

// GBTAParams are the hyperparameters of the leaf-wise gradient boosted trees
// family. Nil fields fall back to the training engine defaults.
type GBTAParams struct {
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	NEstimators     *int     `json:"n_estimators,omitempty"`
	NumLeaves       *int     `json:"num_leaves,omitempty"`
	MaxDepth        *int     `json:"max_depth,omitempty"`
	L1Reg           *float64 `json:"l1_reg,omitempty"`
	L2Reg           *float64 `json:"l2_reg,omitempty"`
	FeatureFraction *float64 `json:"feature_fraction,omitempty"`
	RandomState     *int     `json:"random_state,omitempty"`
}

// GBTBParams are the hyperparameters of the depth-wise gradient boosted trees
// family.
type GBTBParams struct {
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	NEstimators     *int     `json:"n_estimators,omitempty"`
	MaxDepth        *int     `json:"max_depth,omitempty"`
	Subsample       *float64 `json:"subsample,omitempty"`
	ColsampleBytree *float64 `json:"colsample_bytree,omitempty"`
	L2Reg           *float64 `json:"l2_reg,omitempty"`
	L1Reg           *float64 `json:"l1_reg,omitempty"`
	RandomState     *int     `json:"random_state,omitempty"`
}

// RandomForestParams are the hyperparameters of the random forest family.
type RandomForestParams struct {
	NEstimators     *int `json:"n_estimators,omitempty"`
	MaxDepth        *int `json:"max_depth,omitempty"`
	MinSamplesLeaf  *int `json:"min_samples_leaf,omitempty"`
	MinSamplesSplit *int `json:"min_samples_split,omitempty"`
	RandomState     *int `json:"random_state,omitempty"`
}

// Hyperparameters is a closed union over the three families. Family is the
// tag; exactly the matching variant pointer is set. Persistence and the
// training engine switch on Family only.
type Hyperparameters struct {
	Family ModelFamily
	GBTA   *GBTAParams
	GBTB   *GBTBParams
	RF     *RandomForestParams
}

func NewGBTAHyperparameters(p GBTAParams) Hyperparameters {
	return Hyperparameters{Family: FamilyGBTA, GBTA: &p}
}

func NewGBTBHyperparameters(p GBTBParams) Hyperparameters {
	return Hyperparameters{Family: FamilyGBTB, GBTB: &p}
}

func NewRandomForestHyperparameters(p RandomForestParams) Hyperparameters {
	return Hyperparameters{Family: FamilyRandomForest, RF: &p}
}

// Validate checks that the tag matches the variant and that values are in range.
func (h Hyperparameters) Validate() error {
	set := 0
	for _, ok := range []bool{h.GBTA != nil, h.GBTB != nil, h.RF != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one parameter set must be present", ErrInvalidHyperparameters)
	}

	switch h.Family {
	case FamilyGBTA:
		if h.GBTA == nil {
			return fmt.Errorf("%w: family %s carries no %s parameters", ErrInvalidHyperparameters, h.Family, h.Family)
		}
		p := h.GBTA
		return firstErr(
			positiveFloat("learning_rate", p.LearningRate),
			positiveInt("n_estimators", p.NEstimators),
			minInt("num_leaves", p.NumLeaves, 2),
			nonNegativeFloat("l1_reg", p.L1Reg),
			nonNegativeFloat("l2_reg", p.L2Reg),
			fraction("feature_fraction", p.FeatureFraction),
		)
	case FamilyGBTB:
		if h.GBTB == nil {
			return fmt.Errorf("%w: family %s carries no %s parameters", ErrInvalidHyperparameters, h.Family, h.Family)
		}
		p := h.GBTB
		return firstErr(
			positiveFloat("learning_rate", p.LearningRate),
			positiveInt("n_estimators", p.NEstimators),
			nonNegativeInt("max_depth", p.MaxDepth),
			fraction("subsample", p.Subsample),
			fraction("colsample_bytree", p.ColsampleBytree),
			nonNegativeFloat("l1_reg", p.L1Reg),
			nonNegativeFloat("l2_reg", p.L2Reg),
		)
	case FamilyRandomForest:
		if h.RF == nil {
			return fmt.Errorf("%w: family %s carries no %s parameters", ErrInvalidHyperparameters, h.Family, h.Family)
		}
		p := h.RF
		return firstErr(
			positiveInt("n_estimators", p.NEstimators),
			positiveInt("max_depth", p.MaxDepth),
			positiveInt("min_samples_leaf", p.MinSamplesLeaf),
			minInt("min_samples_split", p.MinSamplesSplit, 2),
		)
	}
	return fmt.Errorf("%w: %q", ErrInvalidFamily, h.Family)
}

// EngineParams renders the set fields with the parameter names of the
// training engine. Unset fields are omitted so engine defaults apply.
func (h Hyperparameters) EngineParams() map[string]any {
	out := map[string]any{}
	switch h.Family {
	case FamilyGBTA:
		if p := h.GBTA; p != nil {
			putFloat(out, "learning_rate", p.LearningRate)
			putInt(out, "n_estimators", p.NEstimators)
			putInt(out, "num_leaves", p.NumLeaves)
			putInt(out, "max_depth", p.MaxDepth)
			putFloat(out, "lambda_l1", p.L1Reg)
			putFloat(out, "lambda_l2", p.L2Reg)
			putFloat(out, "feature_fraction", p.FeatureFraction)
			putInt(out, "random_state", p.RandomState)
		}
	case FamilyGBTB:
		if p := h.GBTB; p != nil {
			putFloat(out, "learning_rate", p.LearningRate)
			putInt(out, "n_estimators", p.NEstimators)
			putInt(out, "max_depth", p.MaxDepth)
			putFloat(out, "subsample", p.Subsample)
			putFloat(out, "colsample_bytree", p.ColsampleBytree)
			putFloat(out, "reg_lambda", p.L2Reg)
			putFloat(out, "reg_alpha", p.L1Reg)
			putInt(out, "random_state", p.RandomState)
		}
	case FamilyRandomForest:
		if p := h.RF; p != nil {
			putInt(out, "n_estimators", p.NEstimators)
			putInt(out, "max_depth", p.MaxDepth)
			putInt(out, "min_samples_leaf", p.MinSamplesLeaf)
			putInt(out, "min_samples_split", p.MinSamplesSplit)
			putInt(out, "random_state", p.RandomState)
		}
	}
	return out
}

// Variant returns the active parameter set, for serialization.
func (h Hyperparameters) Variant() any {
	switch h.Family {
	case FamilyGBTA:
		return h.GBTA
	case FamilyGBTB:
		return h.GBTB
	case FamilyRandomForest:
		return h.RF
	}
	return nil
}

// ============================================================================
// Catalog
// ============================================================================

// Metrics are the evaluation results reported by the training engine.
type Metrics struct {
	Accuracy float64 `json:"accuracy"`
	ROCAUC   float64 `json:"roc_auc"`
	PRAUC    float64 `json:"pr_auc"`
}

// CatalogEntry is the denormalized view of one registered model: the uniform
// catalog row plus the hyperparameters of its family.
type CatalogEntry struct {
	ID              int64
	Name            string
	ArtifactPath    string
	Family          ModelFamily
	Metrics         Metrics
	CreatedAt       time.Time
	Hyperparameters Hyperparameters
}

// NewCatalogEntry is the value handed to the repository on create.
type NewCatalogEntry struct {
	Name            string
	ArtifactPath    string
	Metrics         Metrics
	Hyperparameters Hyperparameters
}

// Validate checks the entry before it reaches the store
func (e NewCatalogEntry) Validate() error {
	if strings.TrimSpace(e.ArtifactPath) == "" {
		return ErrInvalidArtifactPath
	}
	return e.Hyperparameters.Validate()
}

// ============================================================================
// helpers
// ============================================================================

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func positiveFloat(name string, v *float64) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%w: %s must be > 0", ErrInvalidHyperparameters, name)
	}
	return nil
}

func nonNegativeFloat(name string, v *float64) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalidHyperparameters, name)
	}
	return nil
}

func fraction(name string, v *float64) error {
	if v != nil && (*v <= 0 || *v > 1) {
		return fmt.Errorf("%w: %s must be in (0, 1]", ErrInvalidHyperparameters, name)
	}
	return nil
}

func positiveInt(name string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%w: %s must be > 0", ErrInvalidHyperparameters, name)
	}
	return nil
}

func nonNegativeInt(name string, v *int) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalidHyperparameters, name)
	}
	return nil
}

func minInt(name string, v *int, min int) error {
	if v != nil && *v < min {
		return fmt.Errorf("%w: %s must be >= %d", ErrInvalidHyperparameters, name, min)
	}
	return nil
}

func putFloat(m map[string]any, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

func putInt(m map[string]any, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}
