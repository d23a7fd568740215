package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"transit-classifier-service/internal/core/domain"
)

// ForestFormat is the format tag of a JSON tree ensemble export.
const ForestFormat = "tree-ensemble/v1"

const (
	KindGradientBoosted = "gbt"
	KindRandomForest    = "rf"
)

type forestNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
}

type forestTree struct {
	Nodes []forestNode `json:"nodes"`
}

type forestFile struct {
	Format    string       `json:"format"`
	Kind      string       `json:"kind"`
	Features  []string     `json:"features"`
	BaseScore float64      `json:"base_score"`
	Trees     []forestTree `json:"trees"`
}

// Forest is a tree ensemble evaluated in process. Gradient boosted ensembles
// sum leaf margins and apply a sigmoid; random forests average leaf
// probabilities.
type Forest struct {
	kind      string
	baseScore float64
	trees     []forestTree
	// record position of every feature the trees reference
	columns []int
}

// ReadForest decodes and binds an ensemble. Features must be canonical keys.
func ReadForest(r io.Reader) (*Forest, error) {
	var f forestFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode tree ensemble: %v", domain.ErrInference, err)
	}
	if f.Format != "" && f.Format != ForestFormat {
		return nil, fmt.Errorf("%w: unsupported ensemble format %q", domain.ErrInference, f.Format)
	}
	if f.Kind != KindGradientBoosted && f.Kind != KindRandomForest {
		return nil, fmt.Errorf("%w: unsupported ensemble kind %q", domain.ErrInference, f.Kind)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("%w: ensemble has no trees", domain.ErrInference)
	}

	columns := make([]int, len(f.Features))
	for i, name := range f.Features {
		idx, ok := domain.FeatureIndex(domain.FeatureKey(name))
		if !ok {
			return nil, fmt.Errorf("%w: model feature %q is not a canonical feature", domain.ErrInference, name)
		}
		columns[i] = idx
	}

	for t, tree := range f.Trees {
		if err := validateTree(tree, len(columns)); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", domain.ErrInference, t, err)
		}
	}

	return &Forest{kind: f.Kind, baseScore: f.BaseScore, trees: f.Trees, columns: columns}, nil
}

// validateTree checks every split points at existing nodes further down the
// slice, which rules out cycles.
func validateTree(tree forestTree, nFeatures int) error {
	if len(tree.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range tree.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(tree.Nodes) || n.Right <= i || n.Right >= len(tree.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// Predict implements ports.Artifact.
func (f *Forest) Predict(ctx context.Context, rec domain.FeatureRecord) (int, [2]float64, error) {
	var sum float64
	for _, tree := range f.trees {
		if err := ctx.Err(); err != nil {
			return 0, [2]float64{}, err
		}
		sum += f.leafValue(tree, rec)
	}

	var p1 float64
	switch f.kind {
	case KindGradientBoosted:
		p1 = sigmoid(f.baseScore + sum)
	case KindRandomForest:
		p1 = sum / float64(len(f.trees))
	}
	if math.IsNaN(p1) || p1 < 0 || p1 > 1 {
		return 0, [2]float64{}, fmt.Errorf("%w: probability %v out of range", domain.ErrInference, p1)
	}

	class := 0
	if p1 > 0.5 {
		class = 1
	}
	return class, [2]float64{1 - p1, p1}, nil
}

func (f *Forest) leafValue(tree forestTree, rec domain.FeatureRecord) float64 {
	i := 0
	for {
		n := tree.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if rec[f.columns[n.Feature]] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
