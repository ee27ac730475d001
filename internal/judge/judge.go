// Package judge implements the optional perceptual quality check: an
// LLM-backed reviewer that grades a rendered attempt against its script and
// may suggest delivery tags for the next retry.
package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voiceover-service/internal/config"
	"github.com/book-expert/voiceover-service/internal/core"
)

const (
	chatCompletionsPath = "/chat/completions"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
)

// systemPrompt pins the reviewer role and the strict reply contract. The
// three-way status keeps borderline audio out of the failed bucket.
const systemPrompt = `You are an audio quality reviewer for narrated voiceovers.
Given a script and a rendering of it, grade the delivery.
Reply with ONLY a JSON object, no prose, in this exact shape:
{"status":"pass"|"flag"|"fail","reasoning":"...","issues":["..."],"suggested_tags":["..."]}
Use "pass" for a clean read, "flag" for issues a human should review,
"fail" only when the audio is unusable. Suggested tags are short delivery
hints (for example "slower", "warmly", "cheerfully") to prepend on a retry.`

// ErrNoChoices marks a completion response with an empty choice list.
var ErrNoChoices = errors.New("judge returned no choices")

// Client implements core.PerceptualJudge over an OpenAI-compatible chat
// completions API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	attachAudio bool
}

// NewClient creates a judge client. The API key comes from the environment,
// never from config files.
func NewClient(cfg config.JudgeConfig, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      apiKey,
		model:       cfg.Model,
		attachAudio: cfg.AttachAudio,
	}
}

// contentPart is one element of a multimodal user message.
type contentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *inputAudio `json:"input_audio,omitempty"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Judge grades one rendered attempt. The returned verdict is advisory; an
// error means the check could not run, not that the audio failed.
func (c *Client) Judge(ctx context.Context, audio []byte, script string) (core.JudgeVerdict, error) {
	reply, err := c.complete(ctx, audio, script)
	if err != nil {
		return core.JudgeVerdict{}, err
	}

	verdict, err := parseVerdict(reply)
	if err != nil {
		return core.JudgeVerdict{}, err
	}

	return verdict, nil
}

func (c *Client) complete(ctx context.Context, audio []byte, script string) (string, error) {
	parts := []contentPart{{
		Type: "text",
		Text: "Script:\n" + script,
	}}

	if c.attachAudio && len(audio) > 0 {
		parts = append(parts, contentPart{
			Type: "input_audio",
			InputAudio: &inputAudio{
				Data:   base64.StdEncoding.EncodeToString(audio),
				Format: "wav",
			},
		})
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal judge request: %w", err)
	}

	url := c.baseURL + chatCompletionsPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create judge request: %w", err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("judge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return "", fmt.Errorf("judge API returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse

	err = json.NewDecoder(resp.Body).Decode(&parsed)
	if err != nil {
		return "", fmt.Errorf("failed to decode judge response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", ErrNoChoices
	}

	return parsed.Choices[0].Message.Content, nil
}

// parseVerdict decodes the model's JSON verdict, tolerating markdown fences
// some models wrap around it.
func parseVerdict(reply string) (core.JudgeVerdict, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var verdict core.JudgeVerdict

	err := json.Unmarshal([]byte(cleaned), &verdict)
	if err != nil {
		return core.JudgeVerdict{}, fmt.Errorf("failed to parse judge verdict %q: %w", reply, err)
	}

	switch verdict.Status {
	case core.JudgePass, core.JudgeFlag, core.JudgeFail:
		return verdict, nil
	default:
		return core.JudgeVerdict{}, fmt.Errorf("failed to parse judge verdict %q: unknown status", reply)
	}
}
