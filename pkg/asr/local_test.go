package asr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

func createAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0644))
	return path
}

func TestLocalWhisperBackendTranscribe(t *testing.T) {
	audioPath := createAudioFile(t, "13_shure_sm7b.wav")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "true", r.FormValue("punctuation"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "13_shure_sm7b.wav", header.Filename)
		assert.Equal(t, "audio/wav", header.Header.Get("Content-Type"))

		data, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF....WAVEfmt ", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": " The quick brown fox."}`))
	}))
	defer server.Close()

	backend := NewLocalWhisperBackend(server.URL, "en", true, 5*time.Second)
	assert.Equal(t, models.LocalWhisperService, backend.Name())

	transcript, err := backend.Transcribe(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, " The quick brown fox.", transcript.Text)
	assert.Greater(t, transcript.Elapsed, time.Duration(0))
}

func TestLocalWhisperBackendServerError(t *testing.T) {
	audioPath := createAudioFile(t, "a.wav")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	backend := NewLocalWhisperBackend(server.URL, "en", false, 5*time.Second)
	transcript, err := backend.Transcribe(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Empty(t, transcript.Text)
}

func TestLocalWhisperBackendInvalidJSON(t *testing.T) {
	audioPath := createAudioFile(t, "a.wav")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	transcript, err := NewLocalWhisperBackend(server.URL, "en", true, 5*time.Second).
		Transcribe(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Empty(t, transcript.Text)
}

func TestLocalWhisperBackendUnavailable(t *testing.T) {
	audioPath := createAudioFile(t, "a.wav")

	// 关闭后的服务地址不可达
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewLocalWhisperBackend(url, "en", true, 2*time.Second).Transcribe(context.Background(), audioPath)
	var unavailable *utils.BackendUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, models.LocalWhisperService, unavailable.Backend)
	assert.True(t, utils.IsRetryable(err))
}

func TestLocalWhisperBackendTimeout(t *testing.T) {
	audioPath := createAudioFile(t, "a.wav")

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	_, err := NewLocalWhisperBackend(server.URL, "en", true, 50*time.Millisecond).
		Transcribe(context.Background(), audioPath)
	assert.True(t, utils.IsRetryable(err))
}

func TestLocalWhisperBackendMissingFile(t *testing.T) {
	backend := NewLocalWhisperBackend("http://127.0.0.1:1", "en", true, time.Second)
	_, err := backend.Transcribe(context.Background(), filepath.Join(t.TempDir(), "none.wav"))
	assert.Error(t, err)
	assert.False(t, utils.IsRetryable(err))
}
