// Package controller drives the per-item generation/retry/quality-control
// state machine. One Controller.Run call owns one item start to finish; all
// mutable retry state (speed, tags, history, counters) is local to that call,
// so controllers for different items can run concurrently without shared state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceover-service/internal/core"
	"github.com/book-expert/voiceover-service/internal/qc"
	"github.com/book-expert/voiceover-service/internal/tags"
	"github.com/book-expert/voiceover-service/internal/timing"
)

// state identifies where an item currently is in its attempt loop. Used for
// transition logging only; control flow lives in Run.
type state int

const (
	stateInit state = iota
	stateGenerating
	stateMeasuring
	stateEvaluatingDuration
	stateAdjustingSpeed
	stateRunningQC
	stateAdjustingTags
	stateTerminal
)

var stateNames = [...]string{
	"Init",
	"Generating",
	"Measuring",
	"EvaluatingDuration",
	"AdjustingSpeed",
	"RunningQC",
	"AdjustingTags",
	"Terminal",
}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "Unknown"
}

// Item validation errors.
var (
	ErrScriptEmpty       = errors.New("script text cannot be empty")
	ErrVoiceEmpty        = errors.New("voice id cannot be empty")
	ErrTargetNotPositive = errors.New("target duration must be positive")
)

// Policy bounds the retry loop. MaxAttempts caps all attempt kinds (timing,
// tag, error retries) jointly; MaxTagRetries is its own counter underneath.
type Policy struct {
	MaxAttempts   int
	MaxTagRetries int
	MaxTags       int
	InitialSpeed  float64
}

// Controller runs the attempt state machine for single items.
type Controller struct {
	synth    core.SpeechSynthesizer
	analyzer core.AudioAnalyzer
	gate     *qc.Gate
	adjuster timing.Adjuster
	policy   Policy
	log      *logger.Logger
}

// New creates a Controller.
func New(
	synth core.SpeechSynthesizer,
	analyzer core.AudioAnalyzer,
	gate *qc.Gate,
	adjuster timing.Adjuster,
	policy Policy,
	log *logger.Logger,
) *Controller {
	return &Controller{
		synth:    synth,
		analyzer: analyzer,
		gate:     gate,
		adjuster: adjuster,
		policy:   policy,
		log:      log,
	}
}

// Run executes the full attempt loop for one item and always returns exactly
// one ItemResult; errors never escape this boundary.
func (c *Controller) Run(ctx context.Context, item core.VoiceoverItem) core.ItemResult {
	validationErr := validateItem(item)
	if validationErr != nil {
		return core.ItemResult{
			OutputID:       item.OutputID,
			Disposition:    core.DispositionFailed,
			TargetDuration: item.TargetDuration,
			Reason:         fmt.Sprintf("rejected before generation: %v", validationErr),
		}
	}

	run := &itemRun{
		item:  item,
		speed: c.initialSpeed(item),
		state: stateInit,
	}

	c.transition(run, stateGenerating)

	for len(run.history) < c.policy.MaxAttempts {
		if ctx.Err() != nil {
			return c.terminateExhausted(run, "canceled before attempt completed")
		}

		outcome := c.runAttempt(ctx, run)
		if outcome != nil {
			return *outcome
		}
	}

	return c.terminateExhausted(run, "retry budget exhausted")
}

// itemRun is the mutable state of one item's loop.
type itemRun struct {
	item       core.VoiceoverItem
	speed      float64
	judgeTags  []string
	history    []core.Attempt
	tagRetries int
	state      state
}

// runAttempt performs one Generating→…→terminal-or-retry cycle. A nil return
// means the loop should continue with the updated run state.
func (c *Controller) runAttempt(ctx context.Context, run *itemRun) *core.ItemResult {
	ordinal := len(run.history) + 1
	attemptTags := c.attemptTags(ordinal, run.speed, run.judgeTags)

	audio, synthErr := c.synth.Synthesize(ctx, core.SynthesisRequest{
		Text:    tags.Apply(run.item.Script, attemptTags),
		VoiceID: run.item.VoiceID,
		Params:  run.item.Params,
		Speed:   run.speed,
	})
	if synthErr != nil {
		return c.recordGenerationFailure(run, ordinal, attemptTags, synthErr)
	}

	c.transition(run, stateMeasuring)

	trimmed, duration, measureErr := c.analyzer.TrimAndMeasure(audio)
	if measureErr != nil {
		wrapped := fmt.Errorf("unusable audio: %w", measureErr)

		return c.recordGenerationFailure(run, ordinal, attemptTags, wrapped)
	}

	run.history = append(run.history, core.Attempt{
		Ordinal:  ordinal,
		Speed:    run.speed,
		Tags:     attemptTags,
		Audio:    trimmed,
		Duration: duration,
	})

	c.transition(run, stateEvaluatingDuration)

	withinTolerance := c.adjuster.WithinTolerance(duration, run.item.TargetDuration)
	if !withinTolerance && len(run.history) < c.policy.MaxAttempts {
		nextSpeed, speedErr := c.adjuster.NextSpeed(run.speed, duration, run.item.TargetDuration)
		if speedErr == nil {
			c.transition(run, stateAdjustingSpeed)
			c.log.Info(
				"[%s] attempt %d measured %.2fs (target %.2fs), retrying at speed %.2f",
				run.item.OutputID, ordinal, duration, run.item.TargetDuration, nextSpeed,
			)

			run.speed = nextSpeed
			c.transition(run, stateGenerating)

			return nil
		}

		c.log.Warn("[%s] speed adjustment unavailable: %v", run.item.OutputID, speedErr)
	}

	return c.runQC(ctx, run)
}

// runQC evaluates the best attempt so far and decides the terminal disposition
// or a tag retry.
func (c *Controller) runQC(ctx context.Context, run *itemRun) *core.ItemResult {
	c.transition(run, stateRunningQC)

	// Evaluate the closest attempt; ties resolve to the earliest ordinal.
	// Once judge feedback is in play the newest render carries its tags, so
	// ties resolve to it instead.
	chosenIdx := bestAttemptIndex(run.history, run.item.TargetDuration)

	if len(run.judgeTags) > 0 {
		current := len(run.history) - 1
		currentDelta := run.history[current].DurationDelta(run.item.TargetDuration)

		if chosenIdx < 0 || currentDelta <= run.history[chosenIdx].DurationDelta(run.item.TargetDuration) {
			chosenIdx = current
		}
	}

	chosen := &run.history[chosenIdx]

	verdict := c.gate.Evaluate(ctx, chosen.Audio, chosen.Duration, run.item)
	chosen.Verdict = &verdict

	switch verdict.Class {
	case core.ClassPassAll:
		return c.terminal(run, core.DispositionCompleted, chosenIdx,
			fmt.Sprintf("all checks passed after %d attempt(s)", len(run.history)))
	case core.ClassGenerationFailed:
		return c.terminal(run, core.DispositionFailed, chosenIdx, "quality gate saw no audio")
	case core.ClassFlagged:
		// Fall through to the tag-retry decision below.
	}

	suggested := judgeSuggestions(&verdict)
	if len(suggested) > 0 &&
		run.tagRetries < c.policy.MaxTagRetries &&
		len(run.history) < c.policy.MaxAttempts {
		c.transition(run, stateAdjustingTags)

		run.tagRetries++
		run.judgeTags = tags.Merge(run.judgeTags, suggested, c.policy.MaxTags)

		c.log.Info(
			"[%s] judge suggested %v, tag retry %d/%d",
			run.item.OutputID, suggested, run.tagRetries, c.policy.MaxTagRetries,
		)
		c.transition(run, stateGenerating)

		return nil
	}

	reason := "flagged by quality gate"
	if len(verdict.FailureReasons) > 0 {
		reason = "flagged: " + strings.Join(verdict.FailureReasons, "; ")
	}

	return c.terminal(run, core.DispositionNeedsReview, chosenIdx, reason)
}

// recordGenerationFailure appends a failed attempt slot and decides whether the
// loop may continue. Permanent provider errors abort the item immediately.
func (c *Controller) recordGenerationFailure(
	run *itemRun,
	ordinal int,
	attemptTags []string,
	synthErr error,
) *core.ItemResult {
	run.history = append(run.history, core.Attempt{
		Ordinal:  ordinal,
		Speed:    run.speed,
		Tags:     attemptTags,
		GenError: synthErr.Error(),
	})

	if errors.Is(synthErr, core.ErrProviderPermanent) || errors.Is(synthErr, core.ErrInvalidInput) {
		result := c.terminateExhausted(run, fmt.Sprintf("provider rejected request: %v", synthErr))

		return &result
	}

	c.log.Warn("[%s] attempt %d generation failed: %v", run.item.OutputID, ordinal, synthErr)

	if len(run.history) < c.policy.MaxAttempts {
		// Plain retry with speed and tags unchanged.
		c.transition(run, stateGenerating)

		return nil
	}

	result := c.terminateExhausted(run, fmt.Sprintf("generation failed: %v", synthErr))

	return &result
}

// terminateExhausted closes out an item that ran out of attempts (or was
// canceled, or hit a permanent provider error) without a QC termination. The
// best attempt with audio wins: needs_review when it also passed duration,
// failed otherwise.
func (c *Controller) terminateExhausted(run *itemRun, cause string) core.ItemResult {
	bestIdx := bestAttemptIndex(run.history, run.item.TargetDuration)
	if bestIdx < 0 {
		result := c.terminal(run, core.DispositionFailed, -1,
			fmt.Sprintf("%s; no usable audio in %d attempt(s)", cause, len(run.history)))

		return *result
	}

	best := &run.history[bestIdx]
	if c.adjuster.WithinTolerance(best.Duration, run.item.TargetDuration) {
		result := c.terminal(run, core.DispositionNeedsReview, bestIdx,
			fmt.Sprintf("%s; best attempt #%d kept (%.2fs, target %.2fs)",
				cause, best.Ordinal, best.Duration, run.item.TargetDuration))

		return *result
	}

	result := c.terminal(run, core.DispositionFailed, bestIdx,
		fmt.Sprintf("%s; best attempt #%d missed duration (%.2fs, target %.2fs)",
			cause, best.Ordinal, best.Duration, run.item.TargetDuration))

	return *result
}

func (c *Controller) terminal(
	run *itemRun,
	disposition core.Disposition,
	winningIdx int,
	reason string,
) *core.ItemResult {
	c.transition(run, stateTerminal)

	result := &core.ItemResult{
		OutputID:       run.item.OutputID,
		Disposition:    disposition,
		History:        run.history,
		Attempts:       len(run.history),
		TargetDuration: run.item.TargetDuration,
		Reason:         reason,
	}

	if winningIdx >= 0 && winningIdx < len(run.history) {
		result.Winning = &run.history[winningIdx]
	}

	c.log.Info("[%s] %s after %d attempt(s): %s",
		run.item.OutputID, disposition, len(run.history), reason)

	return result
}

// attemptTags derives the tags for one attempt: a directional pacing tag from
// the current speed correction, then accumulated judge suggestions, capped.
// The first attempt always runs untagged.
func (c *Controller) attemptTags(ordinal int, speed float64, judgeTags []string) []string {
	if ordinal == 1 {
		return nil
	}

	var directional []string
	if tag := tags.Directional(speed); tag != "" {
		directional = []string{tag}
	}

	return tags.Merge(directional, judgeTags, c.policy.MaxTags)
}

func (c *Controller) initialSpeed(item core.VoiceoverItem) float64 {
	speed := item.Params.Speed
	if speed == 0 {
		speed = c.policy.InitialSpeed
	}

	if speed == 0 {
		speed = 1.0
	}

	return c.adjuster.Clamp(speed)
}

func (c *Controller) transition(run *itemRun, to state) {
	if run.state == to {
		return
	}

	c.log.Info("[%s] %s -> %s", run.item.OutputID, run.state, to)
	run.state = to
}

// judgeSuggestions extracts the judge's tag suggestions from a verdict, if the
// judge ran and offered any.
func judgeSuggestions(verdict *core.QCVerdict) []string {
	if verdict.Judge == nil {
		return nil
	}

	return verdict.Judge.SuggestedTags
}

// bestAttemptIndex selects the attempt with valid audio closest to the target
// duration; ties go to the earliest ordinal. Returns -1 when no attempt
// produced audio.
func bestAttemptIndex(history []core.Attempt, target float64) int {
	best := -1
	bestDelta := 0.0

	for i := range history {
		if !history[i].HasAudio() {
			continue
		}

		delta := history[i].DurationDelta(target)
		if best < 0 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}

	return best
}

func validateItem(item core.VoiceoverItem) error {
	if strings.TrimSpace(item.Script) == "" {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, ErrScriptEmpty)
	}

	if item.VoiceID == "" {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, ErrVoiceEmpty)
	}

	if item.TargetDuration <= 0 {
		return fmt.Errorf("%w: %w (got %.3f)", core.ErrInvalidInput, ErrTargetNotPositive, item.TargetDuration)
	}

	return nil
}
