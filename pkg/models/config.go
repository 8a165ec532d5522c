package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// 识别后端标识
const (
	LocalWhisperService  = "local_whisper_large_v3_turbo"
	OpenAIWhisperService = "openai_whisper_1"
)

// Config 表示评估工具的配置
type Config struct {
	BaseDir           string `json:"base_dir" yaml:"base_dir"`                       // 样本与元数据所在根目录
	MetadataFile      string `json:"metadata_file" yaml:"metadata_file"`             // 元数据文件（相对 BaseDir）
	ReferenceTextFile string `json:"reference_text_file" yaml:"reference_text_file"` // 参考文本文件
	ResultsFile       string `json:"results_file" yaml:"results_file"`               // 评估报告输出文件

	// 本地识别服务
	LocalWhisperURL     string `json:"local_whisper_url" yaml:"local_whisper_url"`
	LocalTimeoutSeconds int    `json:"local_timeout_seconds" yaml:"local_timeout_seconds"`
	Language            string `json:"language" yaml:"language"`
	Punctuation         bool   `json:"punctuation" yaml:"punctuation"`

	// 云端识别服务
	OpenAIAPIKey        string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL       string `json:"openai_base_url" yaml:"openai_base_url"`
	OpenAIModel         string `json:"openai_model" yaml:"openai_model"`
	CloudTimeoutSeconds int    `json:"cloud_timeout_seconds" yaml:"cloud_timeout_seconds"`
	CloudConcurrency    int    `json:"cloud_concurrency" yaml:"cloud_concurrency"`

	MaxWorkers       int     `json:"max_workers" yaml:"max_workers"`             // 并发评估样本数
	MaxRetries       int     `json:"max_retries" yaml:"max_retries"`             // 后端调用最大尝试次数
	RetryDelay       float64 `json:"retry_delay" yaml:"retry_delay"`             // 重试延迟（秒）
	ReferenceBackend string  `json:"reference_backend" yaml:"reference_backend"` // 分类平均WER使用的后端

	FFprobeCommand string `json:"ffprobe_command" yaml:"ffprobe_command"`
	FFmpegCommand  string `json:"ffmpeg_command" yaml:"ffmpeg_command"`

	HistoryDB            string `json:"history_db" yaml:"history_db"` // 为空时不记录历史
	TraceFile            string `json:"trace_file" yaml:"trace_file"` // 为空时不输出追踪
	ShowProgress         bool   `json:"show_progress" yaml:"show_progress"`
	WatchDebounceSeconds int    `json:"watch_debounce_seconds" yaml:"watch_debounce_seconds"`

	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`
}

// ConfigValidationError 表示配置验证错误
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("配置验证错误: %s - %s", e.Field, e.Message)
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		BaseDir:              ".",
		MetadataFile:         "metadata.json",
		ReferenceTextFile:    filepath.Join("text", "coffee.txt"),
		ResultsFile:          "evaluation_results.json",
		LocalWhisperURL:      "http://localhost:9000/transcribe",
		LocalTimeoutSeconds:  300,
		Language:             "en",
		Punctuation:          true,
		OpenAIBaseURL:        "https://api.openai.com/v1",
		OpenAIModel:          "whisper-1",
		CloudTimeoutSeconds:  120,
		CloudConcurrency:     2,
		MaxWorkers:           1,
		MaxRetries:           1,
		RetryDelay:           1.0,
		ReferenceBackend:     LocalWhisperService,
		FFprobeCommand:       "ffprobe",
		FFmpegCommand:        "ffmpeg",
		ShowProgress:         true,
		WatchDebounceSeconds: 3,
		LogLevel:             "INFO",
	}
}

// Validate 验证配置是否有效
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return &ConfigValidationError{"BaseDir", "不能为空"}
	}
	if c.MetadataFile == "" {
		return &ConfigValidationError{"MetadataFile", "不能为空"}
	}
	if c.ReferenceTextFile == "" {
		return &ConfigValidationError{"ReferenceTextFile", "不能为空"}
	}
	if c.ResultsFile == "" {
		return &ConfigValidationError{"ResultsFile", "不能为空"}
	}

	if err := validateURL(c.LocalWhisperURL); err != nil {
		return &ConfigValidationError{"LocalWhisperURL", err.Error()}
	}
	if err := validateURL(c.OpenAIBaseURL); err != nil {
		return &ConfigValidationError{"OpenAIBaseURL", err.Error()}
	}
	if c.OpenAIModel == "" {
		return &ConfigValidationError{"OpenAIModel", "不能为空"}
	}

	if c.LocalTimeoutSeconds < 1 || c.LocalTimeoutSeconds > 3600 {
		return &ConfigValidationError{"LocalTimeoutSeconds", "必须在1-3600秒之间"}
	}
	if c.CloudTimeoutSeconds < 1 || c.CloudTimeoutSeconds > 3600 {
		return &ConfigValidationError{"CloudTimeoutSeconds", "必须在1-3600秒之间"}
	}
	if c.CloudConcurrency < 1 || c.CloudConcurrency > 16 {
		return &ConfigValidationError{"CloudConcurrency", "必须在1-16之间"}
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > 16 {
		return &ConfigValidationError{"MaxWorkers", "必须在1-16之间"}
	}
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return &ConfigValidationError{"MaxRetries", "必须在1-10之间"}
	}
	if c.RetryDelay < 0 || c.RetryDelay > 10.0 {
		return &ConfigValidationError{"RetryDelay", "必须在0-10.0秒之间"}
	}
	if c.ReferenceBackend == "" {
		return &ConfigValidationError{"ReferenceBackend", "不能为空"}
	}
	if strings.TrimSpace(c.FFprobeCommand) == "" {
		return &ConfigValidationError{"FFprobeCommand", "不能为空"}
	}
	if strings.TrimSpace(c.FFmpegCommand) == "" {
		return &ConfigValidationError{"FFmpegCommand", "不能为空"}
	}
	if c.WatchDebounceSeconds < 0 || c.WatchDebounceSeconds > 60 {
		return &ConfigValidationError{"WatchDebounceSeconds", "必须在0-60秒之间"}
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL必须以http或https开头: %s", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL缺少主机: %s", raw)
	}
	return nil
}

// LoadFromFile 从文件加载配置，.yaml/.yml 按YAML解析，其余按JSON解析
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("读取配置文件失败: %v", err)
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		logrus.Errorf("解析配置文件失败: %v", err)
		return err
	}

	if err := c.Validate(); err != nil {
		logrus.Errorf("配置验证失败: %v", err)
		return err
	}

	return nil
}

// SaveToFile 保存配置到文件，API密钥不会写入
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.Errorf("创建目录失败: %v", err)
		return err
	}

	out := *c
	out.OpenAIAPIKey = ""

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(&out)
	default:
		data, err = json.MarshalIndent(&out, "", "  ")
	}
	if err != nil {
		logrus.Errorf("序列化配置失败: %v", err)
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.Errorf("写入配置文件失败: %v", err)
		return err
	}

	return nil
}

// ApplyEnvOverrides 使用环境变量覆盖配置
func (c *Config) ApplyEnvOverrides() {
	overrideString(&c.BaseDir, "MIC_EVAL_BASE_DIR")
	overrideString(&c.MetadataFile, "MIC_EVAL_METADATA_FILE")
	overrideString(&c.ReferenceTextFile, "MIC_EVAL_REFERENCE_TEXT_FILE")
	overrideString(&c.ResultsFile, "MIC_EVAL_RESULTS_FILE")
	overrideString(&c.LocalWhisperURL, "MIC_EVAL_LOCAL_WHISPER_URL")
	overrideInt(&c.LocalTimeoutSeconds, "MIC_EVAL_LOCAL_TIMEOUT_SECONDS")
	overrideString(&c.Language, "MIC_EVAL_LANGUAGE")
	overrideBool(&c.Punctuation, "MIC_EVAL_PUNCTUATION")
	overrideString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	overrideString(&c.OpenAIBaseURL, "MIC_EVAL_OPENAI_BASE_URL")
	overrideString(&c.OpenAIModel, "MIC_EVAL_OPENAI_MODEL")
	overrideInt(&c.CloudTimeoutSeconds, "MIC_EVAL_CLOUD_TIMEOUT_SECONDS")
	overrideInt(&c.CloudConcurrency, "MIC_EVAL_CLOUD_CONCURRENCY")
	overrideInt(&c.MaxWorkers, "MIC_EVAL_MAX_WORKERS")
	overrideInt(&c.MaxRetries, "MIC_EVAL_MAX_RETRIES")
	overrideFloat(&c.RetryDelay, "MIC_EVAL_RETRY_DELAY")
	overrideString(&c.ReferenceBackend, "MIC_EVAL_REFERENCE_BACKEND")
	overrideString(&c.FFprobeCommand, "MIC_EVAL_FFPROBE_COMMAND")
	overrideString(&c.FFmpegCommand, "MIC_EVAL_FFMPEG_COMMAND")
	overrideString(&c.HistoryDB, "MIC_EVAL_HISTORY_DB")
	overrideString(&c.TraceFile, "MIC_EVAL_TRACE_FILE")
	overrideBool(&c.ShowProgress, "MIC_EVAL_SHOW_PROGRESS")
	overrideInt(&c.WatchDebounceSeconds, "MIC_EVAL_WATCH_DEBOUNCE_SECONDS")
	overrideString(&c.LogLevel, "MIC_EVAL_LOG_LEVEL")
	overrideString(&c.LogFile, "MIC_EVAL_LOG_FILE")
}

func overrideString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*target = strings.TrimSpace(v)
	}
}

func overrideInt(target *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*target = parsed
		}
	}
}

// ResolvePath 将相对路径解析到 BaseDir 下
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

// CloudConfigured 是否配置了云端识别密钥
func (c *Config) CloudConfigured() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// Reset 重置为默认配置
func (c *Config) Reset() {
	defaultConfig := NewDefaultConfig()
	*c = *defaultConfig
}

// PrintConfig 打印当前配置，API密钥打码
func (c *Config) PrintConfig() {
	out := *c
	if out.OpenAIAPIKey != "" {
		out.OpenAIAPIKey = "******"
	}
	logrus.Info("\n当前配置:")
	bytes, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		logrus.Errorf("序列化配置失败: %v", err)
		return
	}
	logrus.Info(string(bytes))
}
