// Package provider implements speech synthesis against the ElevenLabs HTTP
// API, with request rate limiting and bounded exponential backoff on
// transient failures.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceover-service/internal/config"
	"github.com/book-expert/voiceover-service/internal/core"
	"golang.org/x/time/rate"
)

// API endpoints and headers.
const (
	defaultBaseURL     = "https://api.elevenlabs.io"
	apiTextToSpeech    = "/v1/text-to-speech/"
	headerAPIKey       = "xi-api-key"
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	contentTypeJSON    = "application/json"
	contentTypeMPEG    = "audio/mpeg"
	backoffGrowthRatio = 2
)

var (
	// ErrEmptyText rejects requests before any network call.
	ErrEmptyText = errors.New("synthesis text cannot be empty")
	// ErrEmptyVoice rejects requests without a voice id.
	ErrEmptyVoice = errors.New("voice id cannot be empty")
	// ErrEmptyAudio marks a 200 response with no payload.
	ErrEmptyAudio = errors.New("provider returned empty audio")
)

// Error is a provider HTTP failure carrying the response status. It unwraps to
// the matching transience sentinel so callers can branch with errors.Is.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Detail)
}

// Transient reports whether the status is worth retrying: rate limiting and
// the server-side failures the provider recovers from on its own.
func (e *Error) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (e *Error) Unwrap() error {
	if e.Transient() {
		return core.ErrProviderTransient
	}

	return core.ErrProviderPermanent
}

// Backoff bounds the retry schedule for transient failures within one
// Synthesize call.
type Backoff struct {
	Base  time.Duration
	Max   time.Duration
	Tries int
}

// Client implements core.SpeechSynthesizer against the ElevenLabs API. A
// shared rate limiter paces all concurrent item workers through one request
// budget.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	limiter    *rate.Limiter
	backoff    Backoff
	log        *logger.Logger
}

// NewClient creates a Client from provider configuration. The API key is
// passed separately; it comes from the environment, never from config files.
func NewClient(cfg config.ProviderConfig, apiKey string, log *logger.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		modelID: cfg.ModelID,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		backoff: Backoff{
			Base:  time.Duration(cfg.BackoffBaseMS) * time.Millisecond,
			Max:   time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
			Tries: cfg.BackoffTries,
		},
		log: log,
	}
}

// synthesisPayload is the provider's request contract.
type synthesisPayload struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
}

// errorDetail is the provider's structured error body.
type errorDetail struct {
	Detail json.RawMessage `json:"detail"`
}

// Synthesize renders one request to audio. Transient provider failures are
// retried with exponential backoff up to the configured try budget inside
// this single call; the error of the last try is returned when the budget
// runs out.
func (c *Client) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, ErrEmptyText)
	}

	if req.VoiceID == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, ErrEmptyVoice)
	}

	tries := c.backoff.Tries
	if tries < 1 {
		tries = 1
	}

	var lastErr error

	for try := 0; try < tries; try++ {
		if try > 0 {
			sleepErr := c.sleepBackoff(ctx, try-1)
			if sleepErr != nil {
				return nil, sleepErr
			}

			c.log.Warn("Retrying synthesis (try %d/%d): %v", try+1, tries, lastErr)
		}

		waitErr := c.limiter.Wait(ctx)
		if waitErr != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", waitErr)
		}

		audio, err := c.doSynthesize(ctx, req)
		if err == nil {
			return audio, nil
		}

		lastErr = err

		if !errors.Is(err, core.ErrProviderTransient) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) doSynthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	payload := synthesisPayload{
		Text:    req.Text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       req.Params.Stability,
			SimilarityBoost: req.Params.SimilarityBoost,
			Style:           req.Params.Style,
			Speed:           req.Speed,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := c.baseURL + apiTextToSpeech + req.VoiceID

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}

	httpReq.Header.Set(headerAPIKey, c.apiKey)
	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: request to %s: %w", core.ErrProviderTransient, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading audio body: %w", core.ErrProviderTransient, err)
	}

	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrProviderTransient, ErrEmptyAudio)
	}

	return audio, nil
}

// HealthCheck verifies the provider is reachable and the API key is accepted.
// Run it before a large batch to fail fast.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := c.baseURL + "/v1/user"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for provider at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	return nil
}

// parseErrorResponse extracts the provider's detail message, falling back to
// the raw body for non-JSON errors.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	detail := strings.TrimSpace(string(raw))

	var structured errorDetail
	if json.Unmarshal(raw, &structured) == nil && len(structured.Detail) > 0 {
		detail = string(structured.Detail)
	}

	return &Error{
		StatusCode: resp.StatusCode,
		Detail:     detail,
	}
}

// sleepBackoff waits base*2^exponent capped at max, or returns early when the
// context is canceled.
func (c *Client) sleepBackoff(ctx context.Context, exponent int) error {
	delay := c.backoff.Base
	for i := 0; i < exponent; i++ {
		delay *= backoffGrowthRatio
		if delay >= c.backoff.Max {
			delay = c.backoff.Max

			break
		}
	}

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	}
}
