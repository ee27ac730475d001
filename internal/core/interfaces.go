package core

import (
	"context"
	"time"
)

// SynthesisRequest is one call to the TTS provider.
type SynthesisRequest struct {
	Text    string
	VoiceID string
	Params  VoiceParams
	Speed   float64
}

// SpeechSynthesizer renders text to audio. Implementations are expected to be
// safe for concurrent use; rate limiting and transient-error backoff live behind
// this boundary so the controller never sees a retryable provider hiccup.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

// AudioAnalyzer decodes rendered audio and computes the measurements the
// quality gate needs. All fractions are in [0, 1].
type AudioAnalyzer interface {
	// TrimAndMeasure strips leading/trailing silence, keeping a small padding
	// at each edge, and returns the trimmed payload with its duration in
	// seconds.
	TrimAndMeasure(data []byte) ([]byte, float64, error)

	// ClippingFraction is the fraction of samples at or above the given
	// amplitude threshold (relative to full scale).
	ClippingFraction(data []byte, threshold float64) (float64, error)

	// SilenceFraction is the fraction of audio below floorDB, counting only
	// silent runs of at least minRun.
	SilenceFraction(data []byte, floorDB float64, minRun time.Duration) (float64, error)

	// ZeroCrossRate is a normalized zero-crossing rate, reported as an
	// advisory distortion signal.
	ZeroCrossRate(data []byte) (float64, error)
}

// Transcriber converts rendered audio back to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// AccuracyScorer compares the original script against a transcript and returns
// a word-level accuracy percentage in [0, 100].
type AccuracyScorer interface {
	Score(original, transcript string) float64
}

// PerceptualJudge evaluates delivery quality of a rendered attempt and may
// suggest descriptive audio tags for the next attempt.
type PerceptualJudge interface {
	Judge(ctx context.Context, audio []byte, script string) (JudgeVerdict, error)
}

// ObjectStore is a key-value blob store for rendered audio and batch reports.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
}
