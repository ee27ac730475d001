// Package timing computes playback-speed corrections that steer rendered audio
// toward a target duration.
package timing

import (
	"fmt"

	"github.com/book-expert/voiceover-service/internal/core"
)

// Adjuster holds the speed bounds imposed by the TTS provider and the duration
// tolerance used by WithinTolerance. All methods are pure and deterministic.
type Adjuster struct {
	SpeedMin  float64
	SpeedMax  float64
	Tolerance float64
}

// New creates an Adjuster with the given bounds.
func New(speedMin, speedMax, tolerance float64) Adjuster {
	return Adjuster{
		SpeedMin:  speedMin,
		SpeedMax:  speedMax,
		Tolerance: tolerance,
	}
}

// WithinTolerance reports whether measured is within the configured tolerance
// of target.
func (a Adjuster) WithinTolerance(measured, target float64) bool {
	delta := measured - target
	if delta < 0 {
		delta = -delta
	}

	return delta <= a.Tolerance
}

// NextSpeed computes the speed multiplier for the next attempt:
//
//	raw = currentSpeed * (measured / target)
//
// clamped to [SpeedMin, SpeedMax]. Audio that ran long yields a higher speed,
// audio that ran short a lower one. Non-positive durations are rejected with
// core.ErrInvalidInput; the caller must not reach this point with them.
func (a Adjuster) NextSpeed(currentSpeed, measured, target float64) (float64, error) {
	if target <= 0 {
		return 0, fmt.Errorf("%w: target duration %.3f must be positive", core.ErrInvalidInput, target)
	}

	if measured <= 0 {
		return 0, fmt.Errorf("%w: measured duration %.3f must be positive", core.ErrInvalidInput, measured)
	}

	raw := currentSpeed * (measured / target)

	return a.Clamp(raw), nil
}

// Clamp bounds a speed to the provider's supported range.
func (a Adjuster) Clamp(speed float64) float64 {
	if speed < a.SpeedMin {
		return a.SpeedMin
	}

	if speed > a.SpeedMax {
		return a.SpeedMax
	}

	return speed
}
