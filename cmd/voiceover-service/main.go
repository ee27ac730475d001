// main package for the voiceover-service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceover-service/internal/audio"
	"github.com/book-expert/voiceover-service/internal/batch"
	"github.com/book-expert/voiceover-service/internal/config"
	"github.com/book-expert/voiceover-service/internal/controller"
	"github.com/book-expert/voiceover-service/internal/core"
	"github.com/book-expert/voiceover-service/internal/judge"
	"github.com/book-expert/voiceover-service/internal/objectstore"
	"github.com/book-expert/voiceover-service/internal/provider"
	"github.com/book-expert/voiceover-service/internal/qc"
	"github.com/book-expert/voiceover-service/internal/similarity"
	"github.com/book-expert/voiceover-service/internal/timing"
	"github.com/book-expert/voiceover-service/internal/transcribe"
	"github.com/book-expert/voiceover-service/internal/worker"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// Environment variables. API keys never live in config files.
const (
	envProviderAPIKey = "ELEVENLABS_API_KEY"
	envOpenAIAPIKey   = "OPENAI_API_KEY"
	envJudgeAPIKey    = "JUDGE_API_KEY"
)

var errProviderKeyMissing = errors.New(envProviderAPIKey + " environment variable not set")

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voiceover-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// A missing .env is fine; variables may come from the environment proper.
	_ = godotenv.Load()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, log)
}

func serve(cfg *config.Config, log *logger.Logger) error {
	providerKey := os.Getenv(envProviderAPIKey)
	if providerKey == "" {
		return errProviderKeyMissing
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.VoiceoverStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	scheduler, err := buildScheduler(cfg, providerKey, log)
	if err != nil {
		return err
	}

	batchWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.BatchRequestedSubject,
		store,
		scheduler,
		time.Duration(cfg.NATS.RequestTimeoutSeconds)*time.Second,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.System("Voiceover service initialized. Listening on subject: %s", cfg.NATS.BatchRequestedSubject)

	runErr := batchWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	return nil
}

// buildScheduler wires the per-item pipeline: provider, analyzer, quality
// gate, controller, and the bounded batch scheduler on top.
func buildScheduler(cfg *config.Config, providerKey string, log *logger.Logger) (*batch.Scheduler, error) {
	synth := provider.NewClient(cfg.Provider, providerKey, log)
	analyzer := audio.NewAnalyzer(cfg.QC.SilenceFloorDB, cfg.TrimPadding())
	transcriber := transcribe.NewClient(cfg.Transcribe, os.Getenv(envOpenAIAPIKey))
	scorer := similarity.NewScorer()

	var perceptual core.PerceptualJudge

	if cfg.Judge.Enabled {
		judgeKey := os.Getenv(envJudgeAPIKey)
		if judgeKey == "" {
			judgeKey = os.Getenv(envOpenAIAPIKey)
		}

		perceptual = judge.NewClient(cfg.Judge, judgeKey)
	}

	gate := qc.New(analyzer, transcriber, scorer, perceptual, qc.Thresholds{
		ToleranceSeconds:    cfg.Timing.ToleranceSeconds,
		MaxClippingFraction: cfg.QC.MaxClippingFraction,
		ClippingThreshold:   cfg.QC.ClippingThreshold,
		MaxSilenceRatio:     cfg.QC.MaxSilenceRatio,
		SilenceFloorDB:      cfg.QC.SilenceFloorDB,
		MinSilenceRun:       cfg.MinSilenceRun(),
		MinAccuracyPercent:  cfg.QC.MinAccuracyPercent,
		JudgeEnabled:        cfg.Judge.Enabled,
	}, log)

	adjuster := timing.New(cfg.Timing.SpeedMin, cfg.Timing.SpeedMax, cfg.Timing.ToleranceSeconds)

	itemController := controller.New(synth, analyzer, gate, adjuster, controller.Policy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		MaxTagRetries: cfg.Retry.MaxTagRetries,
		MaxTags:       cfg.Retry.MaxTags,
		InitialSpeed:  cfg.Timing.InitialSpeed,
	}, log)

	scheduler, err := batch.New(itemController, cfg.Batch.Concurrency, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch scheduler: %w", err)
	}

	return scheduler, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
