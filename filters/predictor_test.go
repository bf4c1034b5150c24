package filters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructOutputLengthEqualsInput(t *testing.T) {
	for _, mode := range []int{predictorUnused, predictorNone, predictorSub, predictorUp, predictorAverage, predictorPaeth} {
		p := predictorParams{mode: mode, columns: 3, colors: 1, bitsPerComponent: 8}
		data := []byte{1, 2, 3, 4, 5, 6, 7} // short last row
		require.NoError(t, p.reconstruct(data))
		assert.Len(t, data, 7, "mode %d", mode)
	}
}

func TestReconstructUp(t *testing.T) {
	p := predictorParams{mode: predictorUp, columns: 1, colors: 1, bitsPerComponent: 8}
	data := []byte{10, 5}
	require.NoError(t, p.reconstruct(data))
	assert.Equal(t, []byte{10, 15}, data)
}

func TestReconstructSub(t *testing.T) {
	p := predictorParams{mode: predictorSub, columns: 3, colors: 1, bitsPerComponent: 8}
	data := []byte{1, 2, 3}
	require.NoError(t, p.reconstruct(data))
	assert.Equal(t, []byte{1, 3, 6}, data)
}

func TestReconstructAverage(t *testing.T) {
	p := predictorParams{mode: predictorAverage, columns: 2, colors: 1, bitsPerComponent: 8}
	// First row: no row above, only left contributes (halved).
	data := []byte{10, 15}
	require.NoError(t, p.reconstruct(data))
	assert.Equal(t, []byte{10, 20}, data)
}

func TestReconstructPaeth(t *testing.T) {
	p := predictorParams{mode: predictorPaeth, columns: 2, colors: 1, bitsPerComponent: 8}
	data := []byte{4, 4, 0, 1}
	require.NoError(t, p.reconstruct(data))
	// Row 0: left-only predictions. Row 1: above wins both times.
	assert.Equal(t, []byte{4, 8, 4, 9}, data)
}

func TestPaethTieBreaksLeftThenAbove(t *testing.T) {
	// All distances equal: left wins.
	assert.Equal(t, byte(7), paethPredict(7, 7, 7))
	// Left and above tie at zero distance: left wins.
	assert.Equal(t, byte(0), paethPredict(0, 0, 0))
	// Above beats upper-left on a tie between the two.
	assert.Equal(t, byte(0), paethPredict(3, 0, 2))
}

func TestReconstructRejectsUnknownPredictor(t *testing.T) {
	p := predictorParams{mode: 7, columns: 2, colors: 1, bitsPerComponent: 8}
	err := p.reconstruct([]byte{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predictor 7")
}

func TestReconstructRejectsInvalidGeometry(t *testing.T) {
	p := predictorParams{mode: predictorUp, columns: 0, colors: 1, bitsPerComponent: 8}
	assert.Error(t, p.reconstruct([]byte{1, 2}))

	p = predictorParams{mode: predictorUp, columns: 2, colors: 1, bitsPerComponent: 1}
	assert.Error(t, p.reconstruct([]byte{1, 2}))
}

func TestPredictorFromParamsDefaults(t *testing.T) {
	p, err := predictorFromParams(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, predictorParams{mode: 1, columns: 1, colors: 1, bitsPerComponent: 8}, p)
}
