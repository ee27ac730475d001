// Package transcribe implements speech recognition for quality-control
// verification via an OpenAI-compatible transcription endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voiceover-service/internal/config"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"

	formFieldFile     = "file"
	formFieldModel    = "model"
	formFieldLanguage = "language"

	// uploadFilename only names the multipart part; the payload is in memory.
	uploadFilename = "attempt.wav"
)

// Client implements core.Transcriber against a Whisper-style API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	language   string
}

// transcriptionResponse is the API's JSON reply.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewClient creates a transcription client. The API key comes from the
// environment, never from config files.
func NewClient(cfg config.TranscribeConfig, apiKey string) *Client {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    cfg.Model,
		language: cfg.Language,
	}
}

// Transcribe uploads the audio payload and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFieldFile, uploadFilename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = part.Write(audio)
	if err != nil {
		return "", fmt.Errorf("failed to write audio payload: %w", err)
	}

	err = writer.WriteField(formFieldModel, c.model)
	if err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}

	if c.language != "" {
		err = writer.WriteField(formFieldLanguage, c.language)
		if err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}

	err = writer.Close()
	if err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	req.Header.Set(headerContentType, writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return "", fmt.Errorf("transcription API returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed transcriptionResponse

	err = json.NewDecoder(resp.Body).Decode(&parsed)
	if err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}

	return parsed.Text, nil
}
