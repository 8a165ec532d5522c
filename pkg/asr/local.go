package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// LocalWhisperBackend 本地 Whisper 转写服务
type LocalWhisperBackend struct {
	url         string
	language    string
	punctuation bool
	client      *http.Client
}

// localResponse 本地服务响应结构
type localResponse struct {
	Text string `json:"text"`
}

// NewLocalWhisperBackend 创建本地识别后端
func NewLocalWhisperBackend(url, language string, punctuation bool, timeout time.Duration) *LocalWhisperBackend {
	return &LocalWhisperBackend{
		url:         url,
		language:    language,
		punctuation: punctuation,
		client:      &http.Client{Timeout: timeout},
	}
}

// NewLocalWhisperBackendFromConfig 按配置创建本地识别后端
func NewLocalWhisperBackendFromConfig(cfg *models.Config) *LocalWhisperBackend {
	return NewLocalWhisperBackend(cfg.LocalWhisperURL, cfg.Language, cfg.Punctuation,
		time.Duration(cfg.LocalTimeoutSeconds)*time.Second)
}

// Name 实现Backend接口
func (l *LocalWhisperBackend) Name() string {
	return models.LocalWhisperService
}

// Transcribe 实现Backend接口
func (l *LocalWhisperBackend) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	start := time.Now()
	log := utils.WithField("backend", l.Name())

	body, contentType, err := l.buildForm(audioPath)
	if err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, body)
	if err != nil {
		return Transcript{}, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, utils.NewBackendUnavailableError(l.Name(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, utils.NewBackendUnavailableError(l.Name(), fmt.Errorf("读取响应失败: %w", err))
	}

	elapsed := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warnf("本地识别服务返回状态码 %d: %s", resp.StatusCode, truncate(string(data), 200))
		return Transcript{Elapsed: elapsed}, nil
	}

	var result localResponse
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warnf("解析本地识别响应失败: %v", err)
		return Transcript{Elapsed: elapsed}, nil
	}

	log.Debugf("本地识别完成 %s, 耗时 %.2f 秒", filepath.Base(audioPath), elapsed.Seconds())
	return Transcript{Text: result.Text, Elapsed: elapsed}, nil
}

// buildForm 构造 multipart 表单：file、language、punctuation
func (l *LocalWhisperBackend) buildForm(audioPath string) (*bytes.Buffer, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("打开音频文件失败: %w", err)
	}
	defer file.Close()

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(audioPath))))
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("创建表单文件失败: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("写入文件数据失败: %w", err)
	}

	if err := writer.WriteField("language", l.language); err != nil {
		return nil, "", fmt.Errorf("写入表单字段失败: %w", err)
	}
	if err := writer.WriteField("punctuation", strconv.FormatBool(l.punctuation)); err != nil {
		return nil, "", fmt.Errorf("写入表单字段失败: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("关闭表单写入器失败: %w", err)
	}
	return &requestBody, writer.FormDataContentType(), nil
}

func escapeQuotes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
