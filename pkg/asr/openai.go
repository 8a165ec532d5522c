package asr

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// OpenAIWhisperBackend OpenAI 云端转写服务
type OpenAIWhisperBackend struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAIWhisperBackend 创建云端识别后端，未配置密钥时返回 utils.ErrCredentialMissing
func NewOpenAIWhisperBackend(apiKey, baseURL, model, language string, timeout time.Duration) (*OpenAIWhisperBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, utils.ErrCredentialMissing
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAIWhisperBackend{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		language: language,
	}, nil
}

// NewOpenAIWhisperBackendFromConfig 按配置创建云端识别后端
func NewOpenAIWhisperBackendFromConfig(cfg *models.Config) (*OpenAIWhisperBackend, error) {
	return NewOpenAIWhisperBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Language,
		time.Duration(cfg.CloudTimeoutSeconds)*time.Second)
}

// Name 实现Backend接口
func (o *OpenAIWhisperBackend) Name() string {
	return models.OpenAIWhisperService
}

// Transcribe 实现Backend接口
func (o *OpenAIWhisperBackend) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	start := time.Now()
	log := utils.WithField("backend", o.Name())

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Language: o.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	elapsed := time.Since(start)
	if err != nil {
		if status, ok := httpStatus(err); ok {
			log.Warnf("云端识别服务返回状态码 %d: %v", status, err)
			return Transcript{Elapsed: elapsed}, nil
		}
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, utils.NewBackendUnavailableError(o.Name(), err)
	}

	log.Debugf("云端识别完成 %s, 耗时 %.2f 秒", filepath.Base(audioPath), elapsed.Seconds())
	return Transcript{Text: resp.Text, Elapsed: elapsed}, nil
}

// httpStatus 提取服务端返回的HTTP状态码
func httpStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}
