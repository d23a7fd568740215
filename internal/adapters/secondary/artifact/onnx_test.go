package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-classifier-service/internal/core/domain"
)

func TestProbabilityOutput(t *testing.T) {
	assert.Equal(t, "output_probability", probabilityOutput([]string{"output_label", "output_probability"}))
	assert.Equal(t, "probabilities", probabilityOutput([]string{"label", "probabilities"}))
	assert.Equal(t, "y", probabilityOutput([]string{"y"}))
	assert.Equal(t, "", probabilityOutput([]string{"label", "scores"}))
}

func TestClassFromProbabilities(t *testing.T) {
	class, probs, err := classFromProbabilities([]float32{0.25, 0.75})
	require.NoError(t, err)
	assert.Equal(t, 1, class)
	assert.InDelta(t, 0.75, probs[1], 1e-6)

	class, probs, err = classFromProbabilities([]float32{0.2})
	require.NoError(t, err)
	assert.Equal(t, 0, class)
	assert.InDelta(t, 0.8, probs[0], 1e-6)

	_, _, err = classFromProbabilities([]float32{0.1, 0.2, 0.7})
	assert.ErrorIs(t, err, domain.ErrInference)

	_, _, err = classFromProbabilities([]float32{-0.5, 1.5})
	assert.ErrorIs(t, err, domain.ErrInference)
}
