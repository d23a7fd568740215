package domain

import (
	"fmt"
	"strings"
)

// Verdict is the human-facing label of a prediction.
type Verdict string

const (
	VerdictConfirmed     Verdict = "CONFIRMED"
	VerdictFalsePositive Verdict = "FALSE_POSITIVE"
)

// VerdictForClass maps the binary class onto its verdict. Class 1 is the
// positive (confirmed planet) class.
func VerdictForClass(class int) Verdict {
	if class == 1 {
		return VerdictConfirmed
	}
	return VerdictFalsePositive
}

// Prediction is the outcome of classifying one feature record.
type Prediction struct {
	Verdict       Verdict
	Class         int
	Confidence    float64
	Probabilities [2]float64
}

// NewPrediction builds a Prediction from a class and its class probabilities.
// Confidence is the probability assigned to the predicted class.
func NewPrediction(class int, probs [2]float64) (Prediction, error) {
	if class != 0 && class != 1 {
		return Prediction{}, fmt.Errorf("%w: class %d out of range", ErrInference, class)
	}
	conf := probs[class]
	if conf < 0 || conf > 1 || conf != conf {
		return Prediction{}, fmt.Errorf("%w: probability %v out of range", ErrInference, conf)
	}
	return Prediction{
		Verdict:       VerdictForClass(class),
		Class:         class,
		Confidence:    conf,
		Probabilities: probs,
	}, nil
}

// RowPrediction is one row of a batch. Exactly one of Prediction or Err is set.
type RowPrediction struct {
	Row        int
	Prediction *Prediction
	Err        error
}

// ============================================================================
// Lookup Policy
// ============================================================================

// ResolvePolicy decides what an unknown model id resolves to.
type ResolvePolicy string

const (
	ResolveFallbackToDefault ResolvePolicy = "fallback"
	ResolveErrorOnMiss       ResolvePolicy = "error"
)

// ParseResolvePolicy parses a configured policy. Empty means fallback.
func ParseResolvePolicy(s string) (ResolvePolicy, error) {
	switch ResolvePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ResolveFallbackToDefault:
		return ResolveFallbackToDefault, nil
	case ResolveErrorOnMiss:
		return ResolveErrorOnMiss, nil
	}
	return "", fmt.Errorf("unknown resolve policy %q", s)
}

// ActiveModel describes the artifact currently used for requests that carry no
// model id.
type ActiveModel struct {
	ModelID      *int64
	ArtifactPath string
	IsBase       bool
}
