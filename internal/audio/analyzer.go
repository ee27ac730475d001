// Package audio decodes rendered voiceover payloads (WAV or MP3) and computes
// the measurements the quality gate evaluates: trimmed duration, clipping,
// silence, and zero-crossing rate.
package audio

import (
	"fmt"
	"math"
	"time"
)

const fullScale = 32768.0

// clip is decoded interleaved 16-bit PCM.
type clip struct {
	samples    []int16
	sampleRate int
	channels   int
}

// frames is the number of per-channel sample frames.
func (c *clip) frames() int {
	return len(c.samples) / c.channels
}

// duration in seconds.
func (c *clip) duration() float64 {
	if c.sampleRate == 0 {
		return 0
	}

	return float64(c.frames()) / float64(c.sampleRate)
}

// frameAmplitude is the peak absolute amplitude across channels for one frame,
// normalized to [0, 1].
func (c *clip) frameAmplitude(frame int) float64 {
	peak := 0.0

	for ch := 0; ch < c.channels; ch++ {
		v := math.Abs(float64(c.samples[frame*c.channels+ch]))
		if v > peak {
			peak = v
		}
	}

	return peak / fullScale
}

// Analyzer implements core.AudioAnalyzer over WAV and MP3 payloads. Trimming
// removes leading/trailing audio below TrimFloorDB, keeping TrimPadding at
// each edge; trimmed output is re-encoded as 16-bit PCM WAV.
type Analyzer struct {
	TrimFloorDB float64
	TrimPadding time.Duration
}

// NewAnalyzer creates an Analyzer with the given edge-trim settings.
func NewAnalyzer(trimFloorDB float64, trimPadding time.Duration) *Analyzer {
	return &Analyzer{
		TrimFloorDB: trimFloorDB,
		TrimPadding: trimPadding,
	}
}

// decode sniffs the payload format and decodes it.
func decode(data []byte) (*clip, error) {
	if len(data) >= 4 && string(data[0:4]) == "RIFF" {
		return decodeWAV(data)
	}

	if isMP3(data) {
		return decodeMP3(data)
	}

	return nil, fmt.Errorf("%w: unrecognized payload header", ErrUnsupportedAudio)
}

// TrimAndMeasure strips edge silence and returns the trimmed payload as WAV
// together with its duration in seconds.
func (a *Analyzer) TrimAndMeasure(data []byte) ([]byte, float64, error) {
	decoded, err := decode(data)
	if err != nil {
		return nil, 0, err
	}

	floor := dbToAmplitude(a.TrimFloorDB)
	first, last := -1, -1

	for frame := 0; frame < decoded.frames(); frame++ {
		if decoded.frameAmplitude(frame) > floor {
			if first < 0 {
				first = frame
			}

			last = frame
		}
	}

	if first < 0 {
		// Entirely silent; nothing to keep beyond the payload itself.
		return encodeWAV(decoded), decoded.duration(), nil
	}

	pad := int(a.TrimPadding.Seconds() * float64(decoded.sampleRate))

	start := first - pad
	if start < 0 {
		start = 0
	}

	end := last + 1 + pad
	if end > decoded.frames() {
		end = decoded.frames()
	}

	trimmed := &clip{
		samples:    decoded.samples[start*decoded.channels : end*decoded.channels],
		sampleRate: decoded.sampleRate,
		channels:   decoded.channels,
	}

	return encodeWAV(trimmed), trimmed.duration(), nil
}

// ClippingFraction is the fraction of frames whose peak amplitude is at or
// above threshold (relative to full scale).
func (a *Analyzer) ClippingFraction(data []byte, threshold float64) (float64, error) {
	decoded, err := decode(data)
	if err != nil {
		return 0, err
	}

	total := decoded.frames()
	if total == 0 {
		return 0, nil
	}

	clipped := 0

	for frame := 0; frame < total; frame++ {
		if decoded.frameAmplitude(frame) >= threshold {
			clipped++
		}
	}

	return float64(clipped) / float64(total), nil
}

// SilenceFraction is the fraction of the clip spent in silent runs of at least
// minRun, where silence means peak amplitude below floorDB.
func (a *Analyzer) SilenceFraction(data []byte, floorDB float64, minRun time.Duration) (float64, error) {
	decoded, err := decode(data)
	if err != nil {
		return 0, err
	}

	total := decoded.frames()
	if total == 0 {
		return 0, nil
	}

	floor := dbToAmplitude(floorDB)
	minFrames := int(minRun.Seconds() * float64(decoded.sampleRate))

	silentFrames := 0
	runStart := -1

	flush := func(end int) {
		if runStart >= 0 && end-runStart >= minFrames {
			silentFrames += end - runStart
		}

		runStart = -1
	}

	for frame := 0; frame < total; frame++ {
		if decoded.frameAmplitude(frame) < floor {
			if runStart < 0 {
				runStart = frame
			}
		} else {
			flush(frame)
		}
	}

	flush(total)

	return float64(silentFrames) / float64(total), nil
}

// ZeroCrossRate is the per-frame sign-change rate of the first channel,
// normalized against 0.5 (the rate of alternating noise). Clean speech sits
// well below 1.0; values near or above it suggest distortion.
func (a *Analyzer) ZeroCrossRate(data []byte) (float64, error) {
	decoded, err := decode(data)
	if err != nil {
		return 0, err
	}

	total := decoded.frames()
	if total < 2 {
		return 0, nil
	}

	crossings := 0
	prev := decoded.samples[0]

	for frame := 1; frame < total; frame++ {
		curr := decoded.samples[frame*decoded.channels]
		if (prev < 0) != (curr < 0) {
			crossings++
		}

		prev = curr
	}

	rate := float64(crossings) / float64(total)

	return rate / 0.5, nil
}

// dbToAmplitude converts a dBFS level to a linear amplitude in [0, 1].
func dbToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}
