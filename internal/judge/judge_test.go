// Package judge_test tests verdict parsing and the completion request contract.
package judge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/voiceover-service/internal/config"
	"github.com/book-expert/voiceover-service/internal/core"
	"github.com/book-expert/voiceover-service/internal/judge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string, attachAudio bool) config.JudgeConfig {
	return config.JudgeConfig{
		Enabled:        true,
		BaseURL:        baseURL,
		Model:          "gpt-4o-audio-preview",
		TimeoutSeconds: 5,
		AttachAudio:    attachAudio,
	}
}

func completionReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()

	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	require.NoError(t, json.NewEncoder(w).Encode(reply))
}

func TestJudgeParsesVerdict(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		completionReply(t, w,
			`{"status":"flag","reasoning":"rushed ending","issues":["pacing"],"suggested_tags":["slower"]}`)
	}))
	defer server.Close()

	client := judge.NewClient(testConfig(server.URL, false), "test-key")

	verdict, err := client.Judge(context.Background(), []byte("wav"), "welcome to the tour")
	require.NoError(t, err)

	assert.Equal(t, core.JudgeFlag, verdict.Status)
	assert.Equal(t, "rushed ending", verdict.Reasoning)
	assert.Equal(t, []string{"pacing"}, verdict.Issues)
	assert.Equal(t, []string{"slower"}, verdict.SuggestedTags)
}

func TestJudgeToleratesMarkdownFences(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		completionReply(t, w, "```json\n{\"status\":\"pass\"}\n```")
	}))
	defer server.Close()

	client := judge.NewClient(testConfig(server.URL, false), "test-key")

	verdict, err := client.Judge(context.Background(), []byte("wav"), "script")
	require.NoError(t, err)
	assert.Equal(t, core.JudgePass, verdict.Status)
}

func TestJudgeRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		completionReply(t, w, `{"status":"maybe"}`)
	}))
	defer server.Close()

	client := judge.NewClient(testConfig(server.URL, false), "test-key")

	_, err := client.Judge(context.Background(), []byte("wav"), "script")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestJudgeAttachesAudioWhenConfigured(t *testing.T) {
	t.Parallel()

	var sawAudio bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)

		var parts []struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(req.Messages[1].Content, &parts))

		for _, part := range parts {
			if part.Type == "input_audio" {
				sawAudio = true
			}
		}

		completionReply(t, w, `{"status":"pass"}`)
	}))
	defer server.Close()

	client := judge.NewClient(testConfig(server.URL, true), "test-key")

	_, err := client.Judge(context.Background(), []byte("wav-bytes"), "script")
	require.NoError(t, err)
	assert.True(t, sawAudio)
}

func TestJudgeSurfacesEmptyChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := judge.NewClient(testConfig(server.URL, false), "test-key")

	_, err := client.Judge(context.Background(), []byte("wav"), "script")
	require.ErrorIs(t, err, judge.ErrNoChoices)
}
