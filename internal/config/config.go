// Package config provides the configuration structure for the voiceover-service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied by Normalize when a field is unset.
const (
	DefaultTolerance        = 0.3
	DefaultSpeedMin         = 0.7
	DefaultSpeedMax         = 1.2
	DefaultInitialSpeed     = 1.0
	DefaultMaxAttempts      = 5
	DefaultMaxTagRetries    = 2
	DefaultMaxTags          = 4
	DefaultConcurrency      = 5
	DefaultMaxClipping      = 0.005
	DefaultClipThreshold    = 0.99
	DefaultMaxSilenceRatio  = 0.25
	DefaultSilenceFloorDB   = -50.0
	DefaultMinSilenceRunMS  = 500
	DefaultTrimPaddingMS    = 75
	DefaultMinAccuracy      = 95.0
	DefaultBackoffBaseMS    = 1000
	DefaultBackoffMaxMS     = 30000
	DefaultBackoffTries     = 3
	DefaultProviderRPS      = 2.0
	DefaultRequestTimeoutS  = 120
	DefaultBatchTimeoutS    = 1800
	DefaultWhisperModel     = "whisper-1"
	DefaultSynthesisModelID = "eleven_v3"
)

// Validation errors surfaced before any item runs.
var (
	ErrToleranceNotPositive = errors.New("duration tolerance must be positive")
	ErrSpeedRangeInvalid    = errors.New("speed range is invalid")
	ErrMaxAttemptsTooLow    = errors.New("max attempts must be at least 1")
	ErrConcurrencyTooLow    = errors.New("concurrency must be at least 1")
	ErrAccuracyRange        = errors.New("min accuracy must be between 0 and 100")
	ErrClippingRange        = errors.New("max clipping fraction must be between 0 and 1")
	ErrSilenceRange         = errors.New("max silence ratio must be between 0 and 1")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                   string `toml:"url"`
	BatchRequestedSubject string `toml:"batch_requested_subject"`
	BatchCompletedSubject string `toml:"batch_completed_subject"`
	VoiceoverStoreBucket  string `toml:"voiceover_store_bucket"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// ProviderConfig holds the TTS provider settings.
type ProviderConfig struct {
	BaseURL           string  `toml:"base_url"`
	ModelID           string  `toml:"model_id"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	BackoffBaseMS     int     `toml:"backoff_base_ms"`
	BackoffMaxMS      int     `toml:"backoff_max_ms"`
	BackoffTries      int     `toml:"backoff_tries"`
}

// TranscribeConfig holds the speech-recognition settings.
type TranscribeConfig struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// JudgeConfig holds the optional perceptual judge settings.
type JudgeConfig struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	AttachAudio    bool   `toml:"attach_audio"`
}

// TimingConfig bounds the speed-adjustment loop.
type TimingConfig struct {
	ToleranceSeconds float64 `toml:"tolerance_seconds"`
	SpeedMin         float64 `toml:"speed_min"`
	SpeedMax         float64 `toml:"speed_max"`
	InitialSpeed     float64 `toml:"initial_speed"`
}

// QCConfig holds the quality gate thresholds.
type QCConfig struct {
	MaxClippingFraction float64 `toml:"max_clipping_fraction"`
	ClippingThreshold   float64 `toml:"clipping_threshold"`
	MaxSilenceRatio     float64 `toml:"max_silence_ratio"`
	SilenceFloorDB      float64 `toml:"silence_floor_db"`
	MinSilenceRunMS     int     `toml:"min_silence_run_ms"`
	TrimPaddingMS       int     `toml:"trim_padding_ms"`
	MinAccuracyPercent  float64 `toml:"min_accuracy_percent"`
}

// RetryConfig bounds the per-item attempt loop. MaxAttempts caps timing, tag
// and error retries jointly; MaxTagRetries is its own counter underneath it.
type RetryConfig struct {
	MaxAttempts   int `toml:"max_attempts"`
	MaxTagRetries int `toml:"max_tag_retries"`
	MaxTags       int `toml:"max_tags"`
}

// BatchConfig holds batch-level scheduling settings.
type BatchConfig struct {
	Concurrency int `toml:"concurrency"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	ReportsDir  string `toml:"reports_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Provider   ProviderConfig   `toml:"provider"`
	Transcribe TranscribeConfig `toml:"transcribe"`
	Judge      JudgeConfig      `toml:"judge"`
	Timing     TimingConfig     `toml:"timing"`
	QC         QCConfig         `toml:"qc"`
	Retry      RetryConfig      `toml:"retry"`
	Batch      BatchConfig      `toml:"batch"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the voiceover-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.Normalize()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// Normalize fills unset fields with the documented defaults.
func (c *Config) Normalize() {
	if c.Timing.ToleranceSeconds == 0 {
		c.Timing.ToleranceSeconds = DefaultTolerance
	}

	if c.Timing.SpeedMin == 0 {
		c.Timing.SpeedMin = DefaultSpeedMin
	}

	if c.Timing.SpeedMax == 0 {
		c.Timing.SpeedMax = DefaultSpeedMax
	}

	if c.Timing.InitialSpeed == 0 {
		c.Timing.InitialSpeed = DefaultInitialSpeed
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}

	if c.Retry.MaxTagRetries == 0 {
		c.Retry.MaxTagRetries = DefaultMaxTagRetries
	}

	if c.Retry.MaxTags == 0 {
		c.Retry.MaxTags = DefaultMaxTags
	}

	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = DefaultConcurrency
	}

	if c.QC.MaxClippingFraction == 0 {
		c.QC.MaxClippingFraction = DefaultMaxClipping
	}

	if c.QC.ClippingThreshold == 0 {
		c.QC.ClippingThreshold = DefaultClipThreshold
	}

	if c.QC.MaxSilenceRatio == 0 {
		c.QC.MaxSilenceRatio = DefaultMaxSilenceRatio
	}

	if c.QC.SilenceFloorDB == 0 {
		c.QC.SilenceFloorDB = DefaultSilenceFloorDB
	}

	if c.QC.MinSilenceRunMS == 0 {
		c.QC.MinSilenceRunMS = DefaultMinSilenceRunMS
	}

	if c.QC.TrimPaddingMS == 0 {
		c.QC.TrimPaddingMS = DefaultTrimPaddingMS
	}

	if c.QC.MinAccuracyPercent == 0 {
		c.QC.MinAccuracyPercent = DefaultMinAccuracy
	}

	if c.Provider.RequestsPerSecond == 0 {
		c.Provider.RequestsPerSecond = DefaultProviderRPS
	}

	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = DefaultRequestTimeoutS
	}

	if c.Provider.BackoffBaseMS == 0 {
		c.Provider.BackoffBaseMS = DefaultBackoffBaseMS
	}

	if c.Provider.BackoffMaxMS == 0 {
		c.Provider.BackoffMaxMS = DefaultBackoffMaxMS
	}

	if c.Provider.BackoffTries == 0 {
		c.Provider.BackoffTries = DefaultBackoffTries
	}

	if c.Provider.ModelID == "" {
		c.Provider.ModelID = DefaultSynthesisModelID
	}

	if c.Transcribe.Model == "" {
		c.Transcribe.Model = DefaultWhisperModel
	}

	if c.NATS.RequestTimeoutSeconds == 0 {
		c.NATS.RequestTimeoutSeconds = DefaultBatchTimeoutS
	}
}

// Validate rejects configuration-level problems before any item runs.
func (c *Config) Validate() error {
	if c.Timing.ToleranceSeconds <= 0 {
		return ErrToleranceNotPositive
	}

	if c.Timing.SpeedMin <= 0 || c.Timing.SpeedMax <= c.Timing.SpeedMin {
		return fmt.Errorf("%w: [%.2f, %.2f]", ErrSpeedRangeInvalid, c.Timing.SpeedMin, c.Timing.SpeedMax)
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrMaxAttemptsTooLow
	}

	if c.Batch.Concurrency < 1 {
		return ErrConcurrencyTooLow
	}

	if c.QC.MinAccuracyPercent < 0 || c.QC.MinAccuracyPercent > 100 {
		return ErrAccuracyRange
	}

	if c.QC.MaxClippingFraction < 0 || c.QC.MaxClippingFraction > 1 {
		return ErrClippingRange
	}

	if c.QC.MaxSilenceRatio < 0 || c.QC.MaxSilenceRatio > 1 {
		return ErrSilenceRange
	}

	return nil
}

// TrimPadding returns the configured trim padding as a duration.
func (c *Config) TrimPadding() time.Duration {
	return time.Duration(c.QC.TrimPaddingMS) * time.Millisecond
}

// MinSilenceRun returns the configured minimum silence run as a duration.
func (c *Config) MinSilenceRun() time.Duration {
	return time.Duration(c.QC.MinSilenceRunMS) * time.Millisecond
}
