package reprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	t.Run("produces unit length", func(t *testing.T) {
		normalized := NormalizeVector([]float32{3, 4})
		require.Len(t, normalized, 2)
		assert.InDelta(t, 1.0, magnitude(normalized), 1e-6)
		assert.InDelta(t, 0.6, normalized[0], 1e-6)
		assert.InDelta(t, 0.8, normalized[1], 1e-6)
	})

	t.Run("unit vector unchanged", func(t *testing.T) {
		normalized := NormalizeVector([]float32{0, 1, 0})
		assert.InDelta(t, 1.0, magnitude(normalized), 1e-6)
		assert.InDelta(t, 1.0, normalized[1], 1e-6)
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		normalized := NormalizeVector([]float32{0, 0, 0})
		require.Len(t, normalized, 3)
		for _, val := range normalized {
			assert.Zero(t, val)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, NormalizeVector(nil))
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		input := []float32{3, 4}
		NormalizeVector(input)
		assert.Equal(t, []float32{3, 4}, input)
	})
}
