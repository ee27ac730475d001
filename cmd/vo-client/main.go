// main package for the vo-client, a CLI that submits voiceover batches to the
// service over NATS and prints the resulting report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voiceover-service/internal/config"
	"github.com/book-expert/voiceover-service/internal/core"
	"github.com/book-expert/voiceover-service/internal/objectstore"
	"github.com/book-expert/voiceover-service/internal/provider"
	"github.com/book-expert/voiceover-service/internal/report"
	"github.com/book-expert/voiceover-service/internal/worker"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// Flag names and descriptions.
const (
	flagItems      = "items"
	flagOutput     = "output"
	flagHealth     = "health"
	flagTimeout    = "timeout"
	flagItemsDesc  = "JSON file containing the batch items to render"
	flagOutputDesc = "Path to write the returned JSON report (defaults to stdout summary only)"
	flagHealthDesc = "Check provider reachability and exit"
	flagTimeoutDes = "How long to wait for the batch to complete"
)

// Messages.
const (
	msgProviderHealthy  = "Provider is healthy"
	msgBatchSubmitted   = "Submitted batch %s (%d items), waiting up to %s"
	errItemsRequired    = "--items is required"
	envProviderAPIKey   = "ELEVENLABS_API_KEY"
	clientLogFileName   = "vo-client.log"
	healthCheckTimeout  = 10 * time.Second
	defaultBatchTimeout = 10 * time.Minute
)

var errItemsFlagMissing = errors.New(errItemsRequired)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	items   string
	output  string
	health  bool
	timeout time.Duration
}

func main() {
	err := run()
	if err != nil {
		// The logger might not be initialized yet, use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	_ = godotenv.Load()

	bootstrapLog, err := logger.New(os.TempDir(), clientLogFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer bootstrapLog.Close()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if flags.health {
		return handleHealthCheck(cfg, bootstrapLog)
	}

	if flags.items == "" {
		flag.Usage()

		return errItemsFlagMissing
	}

	return submitBatch(cfg, flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.items, flagItems, "", flagItemsDesc)
	flag.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.DurationVar(&flags.timeout, flagTimeout, defaultBatchTimeout, flagTimeoutDes)
	flag.Parse()

	return flags
}

// handleHealthCheck probes the synthesis provider and prints the result.
func handleHealthCheck(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	client := provider.NewClient(cfg.Provider, os.Getenv(envProviderAPIKey), log)

	err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("provider is not healthy: %w", err)
	}

	fmt.Println(msgProviderHealthy)

	return nil
}

// submitBatch uploads the items, publishes the batch request, waits for the
// completion event, and prints the summary.
func submitBatch(cfg *config.Config, flags appFlags) error {
	items, itemsData, err := loadItems(flags.items)
	if err != nil {
		return err
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

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	workflowID := uuid.NewString()
	itemsKey := "batches/" + workflowID + ".json"

	err = store.Upload(ctx, itemsKey, itemsData)
	if err != nil {
		return fmt.Errorf("failed to upload batch items: %w", err)
	}

	request := worker.BatchRequestedEvent{
		Header:   newHeader(workflowID),
		ItemsKey: itemsKey,
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal batch request: %w", err)
	}

	fmt.Printf(msgBatchSubmitted+"\n", workflowID, len(items), flags.timeout)

	replyMsg, err := natsConnection.RequestWithContext(ctx, cfg.NATS.BatchRequestedSubject, requestData)
	if err != nil {
		return fmt.Errorf("batch request failed: %w", err)
	}

	var reply worker.BatchCompletedEvent

	err = json.Unmarshal(replyMsg.Data, &reply)
	if err != nil {
		return fmt.Errorf("failed to unmarshal completion event: %w", err)
	}

	printSummary(reply)

	if flags.output != "" {
		return saveReport(ctx, store, reply.ReportKey, flags.output)
	}

	return nil
}

func newHeader(workflowID string) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		EventID:    uuid.NewString(),
	}
}

func loadItems(path string) ([]core.VoiceoverItem, []byte, error) {
	itemsData, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read items file %s: %w", path, err)
	}

	var items []core.VoiceoverItem

	err = json.Unmarshal(itemsData, &items)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse items file %s: %w", path, err)
	}

	return items, itemsData, nil
}

func printSummary(reply worker.BatchCompletedEvent) {
	summary := reply.Summary

	fmt.Printf("Batch complete: %d total, %d completed, %d needs review, %d failed\n",
		summary.Total, summary.Completed, summary.NeedsReview, summary.Failed)
	fmt.Printf("Rendered audio: %s across %d attempts\n",
		report.FormatDuration(summary.TotalAudio), summary.TotalAttempts)
	fmt.Printf("Report stored at: %s\n", reply.ReportKey)

	for outputID, key := range reply.AudioKeys {
		fmt.Printf("  %s -> %s\n", outputID, key)
	}
}

func saveReport(ctx context.Context, store core.ObjectStore, reportKey, outputPath string) error {
	reportData, err := store.Download(ctx, reportKey)
	if err != nil {
		return fmt.Errorf("failed to download report %s: %w", reportKey, err)
	}

	err = os.WriteFile(outputPath, reportData, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", outputPath, err)
	}

	fmt.Printf("Report written to %s\n", outputPath)

	return nil
}
