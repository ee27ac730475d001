// Package timing_test tests the speed adjustment math.
package timing_test

import (
	"testing"

	"github.com/book-expert/voiceover-service/internal/core"
	"github.com/book-expert/voiceover-service/internal/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdjuster() timing.Adjuster {
	return timing.New(0.7, 1.2, 0.3)
}

func TestNextSpeedShortAudioClampsToMin(t *testing.T) {
	t.Parallel()

	adj := newAdjuster()

	// 3.2s at speed 1.0 against a 5.0s target: raw = 0.64, below the floor.
	speed, err := adj.NextSpeed(1.0, 3.2, 5.0)
	require.NoError(t, err)
	assert.InEpsilon(t, 0.7, speed, 1e-9)
}

func TestNextSpeedLongAudioSpeedsUp(t *testing.T) {
	t.Parallel()

	adj := newAdjuster()

	speed, err := adj.NextSpeed(1.0, 5.5, 5.0)
	require.NoError(t, err)
	assert.InEpsilon(t, 1.1, speed, 1e-9)
}

func TestNextSpeedExactMatchKeepsCurrentSpeed(t *testing.T) {
	t.Parallel()

	adj := newAdjuster()

	speed, err := adj.NextSpeed(0.9, 5.0, 5.0)
	require.NoError(t, err)
	assert.InEpsilon(t, 0.9, speed, 1e-9)
}

func TestNextSpeedAlwaysWithinBounds(t *testing.T) {
	t.Parallel()

	adj := newAdjuster()

	cases := []struct {
		current, measured, target float64
	}{
		{1.0, 0.5, 30.0},
		{1.2, 60.0, 1.0},
		{0.7, 10.0, 10.0},
		{1.0, 7.3, 6.9},
	}

	for _, tc := range cases {
		speed, err := adj.NextSpeed(tc.current, tc.measured, tc.target)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, speed, adj.SpeedMin)
		assert.LessOrEqual(t, speed, adj.SpeedMax)
	}
}

func TestNextSpeedRejectsNonPositiveDurations(t *testing.T) {
	t.Parallel()

	adj := newAdjuster()

	_, err := adj.NextSpeed(1.0, 5.0, 0)
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = adj.NextSpeed(1.0, 5.0, -2.5)
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = adj.NextSpeed(1.0, 0, 5.0)
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestWithinToleranceBoundary(t *testing.T) {
	t.Parallel()

	adj := newAdjuster()

	assert.True(t, adj.WithinTolerance(4.8, 5.0))
	assert.True(t, adj.WithinTolerance(5.3, 5.0))
	assert.True(t, adj.WithinTolerance(4.7, 5.0))
	assert.False(t, adj.WithinTolerance(5.301, 5.0))
	assert.False(t, adj.WithinTolerance(4.699, 5.0))
}

func TestConvergenceScenario(t *testing.T) {
	t.Parallel()

	// Attempt 1 at speed 1.0 measures 3.2s against a 5.0s target; the next
	// speed clamps to 0.7. Attempt 2 at 0.7 measures 4.8s, which is inside
	// the 0.3s tolerance, so no further adjustment happens.
	adj := newAdjuster()

	speed, err := adj.NextSpeed(1.0, 3.2, 5.0)
	require.NoError(t, err)
	require.InEpsilon(t, 0.7, speed, 1e-9)

	assert.True(t, adj.WithinTolerance(4.8, 5.0))
}
