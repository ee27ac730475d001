// Package core defines the domain types and capability interfaces shared by the
// voiceover generation pipeline.
package core

// Disposition is the final classification of one batch item.
type Disposition string

const (
	// DispositionCompleted means the winning attempt passed every enabled check.
	DispositionCompleted Disposition = "completed"
	// DispositionNeedsReview means audio was produced but at least one check
	// flagged it, or the retry budget ran out before timing converged.
	DispositionNeedsReview Disposition = "needs_review"
	// DispositionFailed means no usable audio was produced.
	DispositionFailed Disposition = "failed"
)

// Classification is the aggregate outcome of a quality gate evaluation.
type Classification string

const (
	// ClassPassAll means every enabled, conclusive check passed.
	ClassPassAll Classification = "pass_all"
	// ClassFlagged means at least one check failed or was inconclusive.
	ClassFlagged Classification = "flagged"
	// ClassGenerationFailed means the provider produced no audio at all.
	ClassGenerationFailed Classification = "generation_failed"
)

// VoiceParams carries the provider voice-style knobs for one item.
type VoiceParams struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
}

// VoiceoverItem is one script to render. Immutable once a batch starts.
// OutputID must be unique within a batch.
type VoiceoverItem struct {
	OutputID       string      `json:"output_id"`
	Script         string      `json:"script"`
	TargetDuration float64     `json:"target_duration"`
	VoiceID        string      `json:"voice_id"`
	Params         VoiceParams `json:"params"`
	Notes          string      `json:"notes,omitempty"`
}

// CheckResult is the outcome of one independent quality check.
type CheckResult struct {
	Name         string  `json:"name"`
	Passed       bool    `json:"passed"`
	Inconclusive bool    `json:"inconclusive,omitempty"`
	Value        float64 `json:"value"`
	Threshold    float64 `json:"threshold"`
	Details      string  `json:"details,omitempty"`
}

// JudgeStatus is the perceptual judge's three-way verdict.
type JudgeStatus string

const (
	JudgePass JudgeStatus = "pass"
	JudgeFlag JudgeStatus = "flag"
	JudgeFail JudgeStatus = "fail"
)

// JudgeVerdict is what the perceptual judge returns for one attempt.
type JudgeVerdict struct {
	Status        JudgeStatus `json:"status"`
	Reasoning     string      `json:"reasoning,omitempty"`
	Issues        []string    `json:"issues,omitempty"`
	SuggestedTags []string    `json:"suggested_tags,omitempty"`
}

// QCVerdict aggregates all quality checks for one attempt. Immutable once
// produced; retry decisions belong to the attempt controller, never to the gate.
type QCVerdict struct {
	Checks         []CheckResult  `json:"checks"`
	Judge          *JudgeVerdict  `json:"judge,omitempty"`
	Transcript     string         `json:"transcript,omitempty"`
	Class          Classification `json:"class"`
	ZeroCrossRate  float64        `json:"zero_cross_rate,omitempty"`
	FailureReasons []string       `json:"failure_reasons,omitempty"`
}

// Check looks up a named check result; nil when the check did not run.
func (v *QCVerdict) Check(name string) *CheckResult {
	for i := range v.Checks {
		if v.Checks[i].Name == name {
			return &v.Checks[i]
		}
	}

	return nil
}

// Attempt is one rendering of an item at a specific speed/tag configuration.
// Append-only within an item's history; never mutated after creation.
type Attempt struct {
	Ordinal  int        `json:"ordinal"`
	Speed    float64    `json:"speed"`
	Tags     []string   `json:"tags,omitempty"`
	Audio    []byte     `json:"-"`
	Duration float64    `json:"duration"`
	GenError string     `json:"gen_error,omitempty"`
	Verdict  *QCVerdict `json:"verdict,omitempty"`
}

// HasAudio reports whether the provider returned a usable payload.
func (a *Attempt) HasAudio() bool {
	return len(a.Audio) > 0 && a.GenError == ""
}

// DurationDelta is the absolute distance from the target duration.
func (a *Attempt) DurationDelta(target float64) float64 {
	d := a.Duration - target
	if d < 0 {
		d = -d
	}

	return d
}

// ItemResult is the single, final outcome of one item's state machine.
type ItemResult struct {
	OutputID       string      `json:"output_id"`
	Disposition    Disposition `json:"disposition"`
	Winning        *Attempt    `json:"winning,omitempty"`
	History        []Attempt   `json:"history"`
	Attempts       int         `json:"attempts"`
	TargetDuration float64     `json:"target_duration"`
	AudioKey       string      `json:"audio_key,omitempty"`
	Reason         string      `json:"reason"`
}
