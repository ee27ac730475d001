// Package report_test tests report aggregation and rendering.
package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/book-expert/voiceover-service/internal/core"
	"github.com/book-expert/voiceover-service/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []core.ItemResult {
	return []core.ItemResult{
		{
			OutputID:       "intro_01",
			Disposition:    core.DispositionCompleted,
			Attempts:       1,
			TargetDuration: 5.0,
			AudioKey:       "completed/intro_01.wav",
			Reason:         "all checks passed after 1 attempt(s)",
			Winning: &core.Attempt{
				Ordinal:  1,
				Speed:    1.0,
				Duration: 5.1,
			},
		},
		{
			OutputID:       "scene_02",
			Disposition:    core.DispositionNeedsReview,
			Attempts:       5,
			TargetDuration: 10.0,
			AudioKey:       "needs_review/scene_02.wav",
			Reason:         "flagged: duration off target",
			Winning: &core.Attempt{
				Ordinal:  3,
				Speed:    1.2,
				Tags:     []string{"faster"},
				Duration: 11.4,
			},
		},
		{
			OutputID:       "outro_03",
			Disposition:    core.DispositionFailed,
			Attempts:       5,
			TargetDuration: 4.0,
			Reason:         "generation failed: status 503",
		},
	}
}

func TestBuildSummaryMatchesDispositions(t *testing.T) {
	t.Parallel()

	built := report.Build(sampleResults())

	assert.Equal(t, 3, built.Summary.Total)
	assert.Equal(t, 1, built.Summary.Completed)
	assert.Equal(t, 1, built.Summary.NeedsReview)
	assert.Equal(t, 1, built.Summary.Failed)
	assert.Equal(t, 11, built.Summary.TotalAttempts)
	assert.InDelta(t, 16.5, built.Summary.TotalAudio, 1e-9)

	require.Len(t, built.Records, 3)
	assert.Equal(t, "intro_01", built.Records[0].OutputID)
	assert.InDelta(t, 5.1, built.Records[0].FinalDuration, 1e-9)
	assert.Equal(t, []string{"faster"}, built.Records[1].Tags)
	// Failed items carry no winning attempt.
	assert.Zero(t, built.Records[2].FinalDuration)
}

func TestWriteJSONRoundTrips(t *testing.T) {
	t.Parallel()

	built := report.Build(sampleResults())

	var buf bytes.Buffer

	require.NoError(t, built.WriteJSON(&buf))

	var decoded report.Report

	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, built.Summary, decoded.Summary)
	assert.Len(t, decoded.Records, 3)
}

func TestWriteCSVHasHeaderAndRows(t *testing.T) {
	t.Parallel()

	built := report.Build(sampleResults())

	var buf bytes.Buffer

	require.NoError(t, built.WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "output_id", rows[0][0])
	assert.Equal(t, "intro_01", rows[1][0])
	assert.Equal(t, "completed", rows[1][1])
	assert.Equal(t, "faster", rows[2][6])
	assert.Equal(t, "failed", rows[3][1])
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "45.2s", report.FormatDuration(45.2))
	assert.Equal(t, "5m 30.5s", report.FormatDuration(330.5))
	assert.Equal(t, "1h 15m", report.FormatDuration(4500))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "scene_2_take_1", report.SanitizeFilename("scene/2:take*1"))
	assert.Equal(t, "plain", report.SanitizeFilename("plain"))
}
