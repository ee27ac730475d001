// Package report folds batch results into a summary plus flat per-item
// records, and renders them as JSON or CSV for review.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/voiceover-service/internal/core"
)

// Time formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
)

var csvHeader = []string{
	"output_id",
	"disposition",
	"attempts",
	"target_duration",
	"final_duration",
	"final_speed",
	"tags",
	"audio_key",
	"reason",
}

// Record is one item's flattened outcome.
type Record struct {
	OutputID       string   `json:"output_id"`
	Disposition    string   `json:"disposition"`
	Attempts       int      `json:"attempts"`
	TargetDuration float64  `json:"target_duration"`
	FinalDuration  float64  `json:"final_duration"`
	FinalSpeed     float64  `json:"final_speed"`
	Tags           []string `json:"tags,omitempty"`
	AudioKey       string   `json:"audio_key,omitempty"`
	Reason         string   `json:"reason"`
}

// Summary is the batch-level rollup.
type Summary struct {
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	NeedsReview   int     `json:"needs_review"`
	Failed        int     `json:"failed"`
	TotalAttempts int     `json:"total_attempts"`
	TotalAudio    float64 `json:"total_audio_seconds"`
}

// Report is the full batch report.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Summary     Summary   `json:"summary"`
	Records     []Record  `json:"records"`
}

// Build folds item results into a report. Record order follows result order.
func Build(results []core.ItemResult) Report {
	report := Report{
		GeneratedAt: time.Now().UTC(),
		Summary:     Summary{Total: len(results)},
		Records:     make([]Record, 0, len(results)),
	}

	for i := range results {
		result := &results[i]

		switch result.Disposition {
		case core.DispositionCompleted:
			report.Summary.Completed++
		case core.DispositionNeedsReview:
			report.Summary.NeedsReview++
		case core.DispositionFailed:
			report.Summary.Failed++
		}

		report.Summary.TotalAttempts += result.Attempts

		record := Record{
			OutputID:       result.OutputID,
			Disposition:    string(result.Disposition),
			Attempts:       result.Attempts,
			TargetDuration: result.TargetDuration,
			AudioKey:       result.AudioKey,
			Reason:         result.Reason,
		}

		if result.Winning != nil {
			record.FinalDuration = result.Winning.Duration
			record.FinalSpeed = result.Winning.Speed
			record.Tags = result.Winning.Tags
			report.Summary.TotalAudio += result.Winning.Duration
		}

		report.Records = append(report.Records, record)
	}

	return report
}

// WriteJSON renders the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(r)
	if err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}

	return nil
}

// WriteCSV renders the per-item records as CSV with a header row.
func (r Report) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	err := writer.Write(csvHeader)
	if err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, record := range r.Records {
		row := []string{
			record.OutputID,
			record.Disposition,
			strconv.Itoa(record.Attempts),
			strconv.FormatFloat(record.TargetDuration, 'f', 3, 64),
			strconv.FormatFloat(record.FinalDuration, 'f', 3, 64),
			strconv.FormatFloat(record.FinalSpeed, 'f', 2, 64),
			strings.Join(record.Tags, " "),
			record.AudioKey,
			record.Reason,
		}

		err = writer.Write(row)
		if err != nil {
			return fmt.Errorf("failed to write CSV record for %s: %w", record.OutputID, err)
		}
	}

	writer.Flush()

	flushErr := writer.Error()
	if flushErr != nil {
		return fmt.Errorf("failed to flush CSV report: %w", flushErr)
	}

	return nil
}

// FormatDuration renders seconds in a human-readable string ("45.2s",
// "5m 30.5s", "1h 15m").
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf("%.1fs", seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remaining := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf("%dm %.1fs", minutes, remaining)
	}

	hours := int(seconds / secondsInHour)
	remaining := int(seconds-float64(hours*secondsInHour)) / secondsInMinute

	return fmt.Sprintf("%dh %dm", hours, remaining)
}

// SanitizeFilename replaces characters that are invalid in most filesystems,
// used when report and audio artifacts are named after output ids.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"/", "_",
		"\\", "_",
		"|", "_",
		"?", "_",
		"*", "_",
	)

	return replacer.Replace(filename)
}
