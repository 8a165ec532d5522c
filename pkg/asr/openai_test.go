package asr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

func TestNewOpenAIWhisperBackendMissingKey(t *testing.T) {
	backend, err := NewOpenAIWhisperBackend("  ", "", "whisper-1", "en", time.Second)
	assert.Nil(t, backend)
	assert.ErrorIs(t, err, utils.ErrCredentialMissing)
}

func TestOpenAIWhisperBackendTranscribe(t *testing.T) {
	audioPath := createAudioFile(t, "14_rode_nt_usb.wav")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			file.Close()
			assert.Equal(t, "14_rode_nt_usb.wav", header.Filename)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"The quick brown fox."}`))
	}))
	defer server.Close()

	backend, err := NewOpenAIWhisperBackend("sk-test", server.URL+"/v1/", "whisper-1", "en", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.OpenAIWhisperService, backend.Name())

	transcript, err := backend.Transcribe(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, "The quick brown fox.", transcript.Text)
}

func TestOpenAIWhisperBackendAPIError(t *testing.T) {
	audioPath := createAudioFile(t, "a.wav")

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"结构化错误", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`},
		{"非JSON错误", http.StatusBadGateway, "bad gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			backend, err := NewOpenAIWhisperBackend("sk-test", server.URL+"/v1", "", "en", 5*time.Second)
			require.NoError(t, err)

			transcript, err := backend.Transcribe(context.Background(), audioPath)
			require.NoError(t, err)
			assert.Empty(t, transcript.Text)
		})
	}
}

func TestOpenAIWhisperBackendUnavailable(t *testing.T) {
	audioPath := createAudioFile(t, "a.wav")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	backend, err := NewOpenAIWhisperBackend("sk-test", url+"/v1", "whisper-1", "en", 2*time.Second)
	require.NoError(t, err)

	_, err = backend.Transcribe(context.Background(), audioPath)
	var unavailable *utils.BackendUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, models.OpenAIWhisperService, unavailable.Backend)
}

func TestBuildRegistry(t *testing.T) {
	cfg := models.NewDefaultConfig()

	registry, err := BuildRegistry(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{models.LocalWhisperService}, registry.Names())

	cfg.OpenAIAPIKey = "sk-test"
	registry, err = BuildRegistry(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{models.LocalWhisperService, models.OpenAIWhisperService}, registry.Names())
}
