package utils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AudioToolsError 是评估工具错误的基础类型
type AudioToolsError struct {
	Message string
	Cause   error
}

// Error 实现error接口
func (e *AudioToolsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

// Unwrap 支持error chain
func (e *AudioToolsError) Unwrap() error {
	return e.Cause
}

// NewError 创建一个新的AudioToolsError
func NewError(message string, cause error) error {
	return &AudioToolsError{
		Message: message,
		Cause:   cause,
	}
}

// ErrCredentialMissing 未配置云端识别密钥，属于预期状态
var ErrCredentialMissing = errors.New("未配置识别服务密钥")

// ExtractionError 音频指标提取失败，该样本不参与本次评估
type ExtractionError struct {
	Path  string
	Cause error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("提取音频指标失败 %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("提取音频指标失败 %s", e.Path)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// NewExtractionError 创建音频指标提取错误
func NewExtractionError(path string, cause error) error {
	return &ExtractionError{Path: path, Cause: cause}
}

// BackendUnavailableError 识别后端网络不可达或超时，可重试
type BackendUnavailableError struct {
	Backend string
	Cause   error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("识别服务 %s 不可用: %v", e.Backend, e.Cause)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Cause
}

// NewBackendUnavailableError 创建后端不可用错误
func NewBackendUnavailableError(backend string, cause error) error {
	return &BackendUnavailableError{Backend: backend, Cause: cause}
}

// MalformedReportError 已有评估报告无法读取或解析
type MalformedReportError struct {
	Path  string
	Cause error
}

func (e *MalformedReportError) Error() string {
	return fmt.Sprintf("评估报告格式错误 %s: %v", e.Path, e.Cause)
}

func (e *MalformedReportError) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断错误是否值得重试
func IsRetryable(err error) bool {
	var unavailable *BackendUnavailableError
	return errors.As(err, &unavailable)
}

// ErrorHandler 处理错误和重试，可被多个协程共享
type ErrorHandler struct {
	MaxRetries int
	RetryDelay float64
	ErrorStats map[string]map[string]int // 操作 -> 错误信息 -> 计数
	mu         sync.Mutex
}

// NewErrorHandler 创建新的错误处理器
func NewErrorHandler(maxRetries int, retryDelay float64) *ErrorHandler {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &ErrorHandler{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		ErrorStats: make(map[string]map[string]int),
	}
}

// Retry 执行函数并在可重试错误时重试，不可重试的错误立即返回
func (h *ErrorHandler) Retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < h.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		h.updateErrorStats(operation, err.Error())

		if !IsRetryable(err) {
			return err
		}

		if attempt < h.MaxRetries-1 {
			delay := time.Duration(h.RetryDelay * float64(attempt+1) * float64(time.Second))
			Warn("操作 %s 失败 (尝试 %d/%d): %s", operation, attempt+1, h.MaxRetries, err)
			Warn("等待 %.1f 秒后重试...", delay.Seconds())

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if h.MaxRetries == 1 {
		return lastErr
	}
	return NewError(fmt.Sprintf("操作 %s 重试 %d 次后仍然失败", operation, h.MaxRetries), lastErr)
}

// SafeExecute 安全地执行函数，并在失败时进行清理
func (h *ErrorHandler) SafeExecute(operation string, fn func() error, cleanup func()) error {
	err := fn()
	if err != nil {
		h.updateErrorStats(operation, err.Error())

		if cleanup != nil {
			Info("执行清理操作...")
			cleanup()
		}

		return NewError(fmt.Sprintf("操作 %s 失败", operation), err)
	}
	return nil
}

// Record 记录一次未经重试的错误
func (h *ErrorHandler) Record(operation string, err error) {
	if err == nil {
		return
	}
	h.updateErrorStats(operation, err.Error())
}

func (h *ErrorHandler) updateErrorStats(operation string, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ErrorStats[operation] == nil {
		h.ErrorStats[operation] = make(map[string]int)
	}
	h.ErrorStats[operation][errMsg]++
}

// GetErrorStats 获取错误统计信息的副本
func (h *ErrorHandler) GetErrorStats() map[string]map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]map[string]int, len(h.ErrorStats))
	for op, errs := range h.ErrorStats {
		inner := make(map[string]int, len(errs))
		for msg, count := range errs {
			inner[msg] = count
		}
		out[op] = inner
	}
	return out
}

// PrintErrorStats 打印错误统计信息
func (h *ErrorHandler) PrintErrorStats() {
	stats := h.GetErrorStats()
	if len(stats) == 0 {
		Info("没有错误记录")
		return
	}

	operations := make([]string, 0, len(stats))
	for op := range stats {
		operations = append(operations, op)
	}
	sort.Strings(operations)

	Info("错误统计:")
	for _, operation := range operations {
		Info("操作: %s", operation)
		for errMsg, count := range stats[operation] {
			Info("  - %s: %d次", errMsg, count)
		}
	}
}
