// Package qc evaluates one rendered attempt against the independent quality
// checks and produces a structured verdict. The gate never retries anything;
// retry decisions belong to the attempt controller.
package qc

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceover-service/internal/core"
)

// Check names, stable identifiers used in verdicts and reports.
const (
	CheckDuration      = "duration"
	CheckClipping      = "clipping"
	CheckSilence       = "silence"
	CheckTranscription = "transcription"
	CheckJudge         = "judge"
)

// Thresholds holds every limit the gate enforces.
type Thresholds struct {
	ToleranceSeconds    float64
	MaxClippingFraction float64
	ClippingThreshold   float64
	MaxSilenceRatio     float64
	SilenceFloorDB      float64
	MinSilenceRun       time.Duration
	MinAccuracyPercent  float64
	JudgeEnabled        bool
}

// Gate wires the check collaborators together. Analyzer, Transcriber and
// Scorer are required; Judge may be nil when the perceptual check is disabled.
type Gate struct {
	analyzer   core.AudioAnalyzer
	transcribe core.Transcriber
	scorer     core.AccuracyScorer
	judge      core.PerceptualJudge
	thresholds Thresholds
	log        *logger.Logger
}

// New creates a Gate.
func New(
	analyzer core.AudioAnalyzer,
	transcribe core.Transcriber,
	scorer core.AccuracyScorer,
	judge core.PerceptualJudge,
	thresholds Thresholds,
	log *logger.Logger,
) *Gate {
	return &Gate{
		analyzer:   analyzer,
		transcribe: transcribe,
		scorer:     scorer,
		judge:      judge,
		thresholds: thresholds,
		log:        log,
	}
}

// Evaluate runs every enabled check on a rendered attempt and classifies the
// outcome. A collaborator failure marks its check inconclusive instead of
// failing the verdict; the aggregate then degrades to flagged.
func (g *Gate) Evaluate(
	ctx context.Context,
	audio []byte,
	measuredDuration float64,
	item core.VoiceoverItem,
) core.QCVerdict {
	verdict := core.QCVerdict{}

	if len(audio) == 0 {
		verdict.Class = core.ClassGenerationFailed
		verdict.FailureReasons = []string{"no audio produced"}

		return verdict
	}

	verdict.Checks = append(verdict.Checks, g.checkDuration(measuredDuration, item.TargetDuration))
	verdict.Checks = append(verdict.Checks, g.checkClipping(audio))
	verdict.Checks = append(verdict.Checks, g.checkSilence(audio))

	transcriptCheck, transcript := g.checkTranscription(ctx, audio, item.Script)
	verdict.Checks = append(verdict.Checks, transcriptCheck)
	verdict.Transcript = transcript

	if zcr, err := g.analyzer.ZeroCrossRate(audio); err == nil {
		// Advisory only; high values hint at distortion but do not gate.
		verdict.ZeroCrossRate = zcr
	}

	if g.thresholds.JudgeEnabled && g.judge != nil {
		judgeCheck, judgeVerdict := g.checkJudge(ctx, audio, item.Script)
		verdict.Checks = append(verdict.Checks, judgeCheck)
		verdict.Judge = judgeVerdict
	}

	verdict.Class = core.ClassPassAll

	for _, check := range verdict.Checks {
		if check.Inconclusive || !check.Passed {
			verdict.Class = core.ClassFlagged
		}

		if check.Details != "" {
			verdict.FailureReasons = append(verdict.FailureReasons, check.Details)
		}
	}

	return verdict
}

func (g *Gate) checkDuration(measured, target float64) core.CheckResult {
	delta := measured - target
	if delta < 0 {
		delta = -delta
	}

	result := core.CheckResult{
		Name:      CheckDuration,
		Passed:    delta <= g.thresholds.ToleranceSeconds,
		Value:     delta,
		Threshold: g.thresholds.ToleranceSeconds,
	}

	if !result.Passed {
		result.Details = fmt.Sprintf(
			"duration off target by %.2fs (measured %.2fs, target %.2fs, tolerance %.2fs)",
			delta, measured, target, g.thresholds.ToleranceSeconds,
		)
	}

	return result
}

func (g *Gate) checkClipping(audio []byte) core.CheckResult {
	fraction, err := g.analyzer.ClippingFraction(audio, g.thresholds.ClippingThreshold)
	if err != nil {
		g.log.Warn("Clipping check inconclusive: %v", err)

		return inconclusive(CheckClipping, g.thresholds.MaxClippingFraction, err)
	}

	result := core.CheckResult{
		Name:      CheckClipping,
		Passed:    fraction <= g.thresholds.MaxClippingFraction,
		Value:     fraction,
		Threshold: g.thresholds.MaxClippingFraction,
	}

	if !result.Passed {
		result.Details = fmt.Sprintf(
			"clipping on %.2f%% of samples (max %.2f%%)",
			fraction*100, g.thresholds.MaxClippingFraction*100,
		)
	}

	return result
}

func (g *Gate) checkSilence(audio []byte) core.CheckResult {
	fraction, err := g.analyzer.SilenceFraction(
		audio, g.thresholds.SilenceFloorDB, g.thresholds.MinSilenceRun,
	)
	if err != nil {
		g.log.Warn("Silence check inconclusive: %v", err)

		return inconclusive(CheckSilence, g.thresholds.MaxSilenceRatio, err)
	}

	result := core.CheckResult{
		Name:      CheckSilence,
		Passed:    fraction <= g.thresholds.MaxSilenceRatio,
		Value:     fraction,
		Threshold: g.thresholds.MaxSilenceRatio,
	}

	if !result.Passed {
		result.Details = fmt.Sprintf(
			"excessive silence: %.1f%% of clip (max %.1f%%)",
			fraction*100, g.thresholds.MaxSilenceRatio*100,
		)
	}

	return result
}

func (g *Gate) checkTranscription(
	ctx context.Context,
	audio []byte,
	script string,
) (core.CheckResult, string) {
	transcript, err := g.transcribe.Transcribe(ctx, audio)
	if err != nil {
		g.log.Warn("Transcription check inconclusive: %v", err)

		return inconclusive(CheckTranscription, g.thresholds.MinAccuracyPercent, err), ""
	}

	accuracy := g.scorer.Score(script, transcript)

	result := core.CheckResult{
		Name:      CheckTranscription,
		Passed:    accuracy >= g.thresholds.MinAccuracyPercent,
		Value:     accuracy,
		Threshold: g.thresholds.MinAccuracyPercent,
	}

	if !result.Passed {
		result.Details = fmt.Sprintf(
			"transcript accuracy %.1f%% below minimum %.1f%%",
			accuracy, g.thresholds.MinAccuracyPercent,
		)
	}

	return result, transcript
}

func (g *Gate) checkJudge(
	ctx context.Context,
	audio []byte,
	script string,
) (core.CheckResult, *core.JudgeVerdict) {
	judgeVerdict, err := g.judge.Judge(ctx, audio, script)
	if err != nil {
		g.log.Warn("Perceptual judge inconclusive: %v", err)

		return inconclusive(CheckJudge, 0, err), nil
	}

	result := core.CheckResult{
		Name:   CheckJudge,
		Passed: judgeVerdict.Status == core.JudgePass,
	}

	if !result.Passed {
		result.Details = fmt.Sprintf(
			"judge verdict %s: %s", judgeVerdict.Status, judgeVerdict.Reasoning,
		)
	}

	return result, &judgeVerdict
}

func inconclusive(name string, threshold float64, err error) core.CheckResult {
	return core.CheckResult{
		Name:         name,
		Passed:       false,
		Inconclusive: true,
		Threshold:    threshold,
		Details:      fmt.Sprintf("%s check inconclusive: %v", name, err),
	}
}
