// Package audio_test tests payload decoding and quality measurements.
package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/book-expert/voiceover-service/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 8000

// buildWAV synthesizes a mono 16-bit PCM WAV from segments of (seconds,
// amplitude) pairs. Amplitude 0 produces digital silence; otherwise a 440 Hz
// tone at the given fraction of full scale.
func buildWAV(t *testing.T, segments ...[2]float64) []byte {
	t.Helper()

	var samples []int16

	for _, seg := range segments {
		seconds, amplitude := seg[0], seg[1]
		n := int(seconds * testSampleRate)

		for i := 0; i < n; i++ {
			v := 0.0
			if amplitude > 0 {
				v = amplitude * math.Sin(2*math.Pi*440*float64(i)/testSampleRate)
			}

			samples = append(samples, int16(v*32767))
		}
	}

	return encodePCM(t, samples)
}

// encodePCM wraps samples in a minimal RIFF header.
func encodePCM(t *testing.T, samples []int16) []byte {
	t.Helper()

	dataSize := len(samples) * 2
	header := []byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00" +
		"\x00\x00\x00\x00\x00\x00\x00\x00\x02\x00\x10\x00data\x00\x00\x00\x00")

	putU32 := func(off int, v uint32) {
		header[off] = byte(v)
		header[off+1] = byte(v >> 8)
		header[off+2] = byte(v >> 16)
		header[off+3] = byte(v >> 24)
	}

	putU32(4, uint32(36+dataSize))
	putU32(24, testSampleRate)
	putU32(28, testSampleRate*2)
	putU32(40, uint32(dataSize))

	out := make([]byte, 0, len(header)+dataSize)
	out = append(out, header...)

	for _, s := range samples {
		out = append(out, byte(uint16(s)), byte(uint16(s)>>8))
	}

	return out
}

func newAnalyzer() *audio.Analyzer {
	return audio.NewAnalyzer(-50.0, 75*time.Millisecond)
}

func TestTrimAndMeasureStripsEdgeSilence(t *testing.T) {
	t.Parallel()

	// 0.5s silence + 2.0s tone + 0.5s silence.
	payload := buildWAV(t, [2]float64{0.5, 0}, [2]float64{2.0, 0.5}, [2]float64{0.5, 0})

	trimmed, duration, err := newAnalyzer().TrimAndMeasure(payload)
	require.NoError(t, err)

	// Tone plus up to 75ms padding on each edge.
	assert.InDelta(t, 2.0+2*0.075, duration, 0.02)
	assert.NotEmpty(t, trimmed)

	// Trimmed output must itself be a decodable WAV.
	_, again, err := newAnalyzer().TrimAndMeasure(trimmed)
	require.NoError(t, err)
	assert.InDelta(t, duration, again, 0.02)
}

func TestTrimAndMeasureAllSilence(t *testing.T) {
	t.Parallel()

	payload := buildWAV(t, [2]float64{1.0, 0})

	_, duration, err := newAnalyzer().TrimAndMeasure(payload)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, duration, 0.01)
}

func TestClippingFractionCleanTone(t *testing.T) {
	t.Parallel()

	payload := buildWAV(t, [2]float64{1.0, 0.5})

	fraction, err := newAnalyzer().ClippingFraction(payload, 0.99)
	require.NoError(t, err)
	assert.Zero(t, fraction)
}

func TestClippingFractionFullScaleTone(t *testing.T) {
	t.Parallel()

	payload := buildWAV(t, [2]float64{1.0, 1.0})

	fraction, err := newAnalyzer().ClippingFraction(payload, 0.99)
	require.NoError(t, err)

	// A full-scale sine spends a measurable share of its samples near peak.
	assert.Greater(t, fraction, 0.005)
}

func TestSilenceFractionCountsLongRunsOnly(t *testing.T) {
	t.Parallel()

	// 1s tone, 1s silence, 1s tone: one-third silent.
	payload := buildWAV(t, [2]float64{1.0, 0.5}, [2]float64{1.0, 0}, [2]float64{1.0, 0.5})

	fraction, err := newAnalyzer().SilenceFraction(payload, -50.0, 500*time.Millisecond)
	require.NoError(t, err)
	assert.InDelta(t, 0.33, fraction, 0.05)

	// The same clip with a high minimum run ignores the pause.
	fraction, err = newAnalyzer().SilenceFraction(payload, -50.0, 2*time.Second)
	require.NoError(t, err)
	assert.Zero(t, fraction)
}

func TestZeroCrossRateToneIsModest(t *testing.T) {
	t.Parallel()

	payload := buildWAV(t, [2]float64{1.0, 0.5})

	rate, err := newAnalyzer().ZeroCrossRate(payload)
	require.NoError(t, err)

	// A 440 Hz tone at 8 kHz crosses zero 880 times per second:
	// 880/8000/0.5 = 0.22 normalized.
	assert.InDelta(t, 0.22, rate, 0.05)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, err := newAnalyzer().TrimAndMeasure([]byte("not audio at all"))
	require.ErrorIs(t, err, audio.ErrUnsupportedAudio)
}

func TestDecodeRejectsTruncatedWAV(t *testing.T) {
	t.Parallel()

	_, _, err := newAnalyzer().TrimAndMeasure([]byte("RIFF1234WAVE"))
	require.ErrorIs(t, err, audio.ErrMalformedWAV)
}
