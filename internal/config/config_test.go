// Package config_test tests the configuration loading for the voiceover-service.
package config_test

import (
	"testing"

	"github.com/book-expert/voiceover-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[nats]
url = "nats://127.0.0.1:4222"
batch_requested_subject = "voiceover.batch.requested"
batch_completed_subject = "voiceover.batch.completed"
voiceover_store_bucket = "VOICEOVER_FILES"
request_timeout_seconds = 600

[provider]
base_url = "https://api.elevenlabs.io"
model_id = "eleven_v3"
requests_per_second = 2.0
timeout_seconds = 120

[timing]
tolerance_seconds = 0.3
speed_min = 0.7
speed_max = 1.2

[qc]
max_clipping_fraction = 0.005
max_silence_ratio = 0.25
silence_floor_db = -50.0
min_accuracy_percent = 95.0

[retry]
max_attempts = 5
max_tag_retries = 2

[batch]
concurrency = 5
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "voiceover.batch.requested", cfg.NATS.BatchRequestedSubject)
	assert.Equal(t, "voiceover.batch.completed", cfg.NATS.BatchCompletedSubject)
	assert.Equal(t, "VOICEOVER_FILES", cfg.NATS.VoiceoverStoreBucket)
	assert.Equal(t, "https://api.elevenlabs.io", cfg.Provider.BaseURL)
	assert.Equal(t, "eleven_v3", cfg.Provider.ModelID)
	assert.InEpsilon(t, 0.3, cfg.Timing.ToleranceSeconds, 0.001)
	assert.InEpsilon(t, 0.7, cfg.Timing.SpeedMin, 0.001)
	assert.InEpsilon(t, 1.2, cfg.Timing.SpeedMax, 0.001)
	assert.InEpsilon(t, 0.005, cfg.QC.MaxClippingFraction, 0.0001)
	assert.InEpsilon(t, -50.0, cfg.QC.SilenceFloorDB, 0.001)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Retry.MaxTagRetries)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.Normalize()

	assert.InEpsilon(t, config.DefaultTolerance, cfg.Timing.ToleranceSeconds, 0.001)
	assert.InEpsilon(t, config.DefaultSpeedMin, cfg.Timing.SpeedMin, 0.001)
	assert.InEpsilon(t, config.DefaultSpeedMax, cfg.Timing.SpeedMax, 0.001)
	assert.InEpsilon(t, config.DefaultInitialSpeed, cfg.Timing.InitialSpeed, 0.001)
	assert.Equal(t, config.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, config.DefaultConcurrency, cfg.Batch.Concurrency)
	assert.InEpsilon(t, config.DefaultMinAccuracy, cfg.QC.MinAccuracyPercent, 0.001)
	assert.Equal(t, "whisper-1", cfg.Transcribe.Model)
	assert.Equal(t, config.DefaultBatchTimeoutS, cfg.NATS.RequestTimeoutSeconds)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadRanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:    "zero tolerance",
			mutate:  func(c *config.Config) { c.Timing.ToleranceSeconds = -1 },
			wantErr: config.ErrToleranceNotPositive,
		},
		{
			name:    "inverted speed range",
			mutate:  func(c *config.Config) { c.Timing.SpeedMin = 1.5 },
			wantErr: config.ErrSpeedRangeInvalid,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *config.Config) { c.Batch.Concurrency = -2 },
			wantErr: config.ErrConcurrencyTooLow,
		},
		{
			name:    "accuracy above 100",
			mutate:  func(c *config.Config) { c.QC.MinAccuracyPercent = 150 },
			wantErr: config.ErrAccuracyRange,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var cfg config.Config

			cfg.Normalize()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}
