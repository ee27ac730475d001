// Package worker provides a NATS worker that consumes voiceover batch
// requests, runs them through the batch scheduler, stores the resulting
// artifacts, and replies with a completion event.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voiceover-service/internal/core"
	"github.com/book-expert/voiceover-service/internal/report"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// ErrItemsKeyEmpty rejects batch requests that name no items object.
var ErrItemsKeyEmpty = errors.New("items_key cannot be empty")

// BatchRequestedEvent asks the worker to render a batch. The items JSON (an
// array of core.VoiceoverItem) is stored in the object store under ItemsKey.
type BatchRequestedEvent struct {
	Header   events.EventHeader `json:"header"`
	ItemsKey string             `json:"items_key"`
}

// BatchCompletedEvent is the worker's reply. AudioKeys maps output ids to the
// object-store keys of their winning audio; failed items have no entry.
type BatchCompletedEvent struct {
	Header    events.EventHeader `json:"header"`
	ReportKey string             `json:"report_key"`
	Summary   report.Summary     `json:"summary"`
	AudioKeys map[string]string  `json:"audio_keys"`
}

// BatchRunner runs one batch to completion. Implemented by batch.Scheduler.
type BatchRunner interface {
	Run(ctx context.Context, items []core.VoiceoverItem) ([]core.ItemResult, error)
}

// NatsWorker listens for batch requests on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	scheduler      BatchRunner
	timeout        time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	scheduler BatchRunner,
	timeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		scheduler:      scheduler,
		timeout:        timeout,
		log:            log,
	}
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for batch requests on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse batch request: %v", err)

		return
	}

	replyEvent, err := w.processBatch(ctx, event)
	if err != nil {
		w.log.Error("Failed to process batch for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processBatch downloads the items, runs the scheduler, stores winning audio
// and the batch report, and builds the completion event.
func (w *NatsWorker) processBatch(
	ctx context.Context,
	event *BatchRequestedEvent,
) (*BatchCompletedEvent, error) {
	itemsData, err := w.store.Download(ctx, event.ItemsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download items for key '%s': %w", event.ItemsKey, err)
	}

	var items []core.VoiceoverItem

	err = json.Unmarshal(itemsData, &items)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal items for key '%s': %w", event.ItemsKey, err)
	}

	results, err := w.scheduler.Run(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("batch rejected: %w", err)
	}

	audioKeys, err := w.storeWinningAudio(ctx, results)
	if err != nil {
		return nil, err
	}

	batchReport := report.Build(results)

	reportKey, err := w.storeReport(ctx, event, batchReport)
	if err != nil {
		return nil, err
	}

	return &BatchCompletedEvent{
		Header:    event.Header,
		ReportKey: reportKey,
		Summary:   batchReport.Summary,
		AudioKeys: audioKeys,
	}, nil
}

// storeWinningAudio uploads every usable winning attempt under a
// disposition-prefixed key and records it on the result.
func (w *NatsWorker) storeWinningAudio(
	ctx context.Context,
	results []core.ItemResult,
) (map[string]string, error) {
	audioKeys := make(map[string]string, len(results))

	for i := range results {
		result := &results[i]
		if result.Winning == nil || !result.Winning.HasAudio() {
			continue
		}

		if result.Disposition == core.DispositionFailed {
			continue
		}

		key := fmt.Sprintf("%s/%s.wav",
			result.Disposition, report.SanitizeFilename(result.OutputID))

		err := w.store.Upload(ctx, key, result.Winning.Audio)
		if err != nil {
			return nil, fmt.Errorf("failed to upload audio for item '%s': %w", result.OutputID, err)
		}

		result.AudioKey = key
		audioKeys[result.OutputID] = key
	}

	return audioKeys, nil
}

func (w *NatsWorker) storeReport(
	ctx context.Context,
	event *BatchRequestedEvent,
	batchReport report.Report,
) (string, error) {
	workflowID := event.Header.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	reportData, err := json.MarshalIndent(batchReport, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch report: %w", err)
	}

	reportKey := "reports/" + report.SanitizeFilename(workflowID) + ".json"

	err = w.store.Upload(ctx, reportKey, reportData)
	if err != nil {
		return "", fmt.Errorf("failed to upload batch report '%s': %w", reportKey, err)
	}

	return reportKey, nil
}

func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *BatchCompletedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*BatchRequestedEvent, error) {
	var event BatchRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.ItemsKey == "" {
		return nil, ErrItemsKeyEmpty
	}

	return &event, nil
}
