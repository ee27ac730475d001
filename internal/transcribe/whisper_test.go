// Package transcribe_test tests the transcription client against a stub server.
package transcribe_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/voiceover-service/internal/config"
	"github.com/book-expert/voiceover-service/internal/transcribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.TranscribeConfig {
	return config.TranscribeConfig{
		BaseURL:        baseURL,
		Model:          "whisper-1",
		Language:       "en",
		TimeoutSeconds: 5,
	}
}

func TestTranscribeUploadsMultipartForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)

		payload, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("wav-bytes"), payload)

		_, _ = w.Write([]byte(`{"text":"welcome to the tour"}`))
	}))
	defer server.Close()

	client := transcribe.NewClient(testConfig(server.URL), "test-key")

	text, err := client.Transcribe(context.Background(), []byte("wav-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "welcome to the tour", text)
}

func TestTranscribeSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"file too small"}`))
	}))
	defer server.Close()

	client := transcribe.NewClient(testConfig(server.URL), "test-key")

	_, err := client.Transcribe(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
