package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorHandler(t *testing.T) {
	handler := NewErrorHandler(3, 0.1)
	assert.Equal(t, 3, handler.MaxRetries)
	assert.Equal(t, 0.1, handler.RetryDelay)
	assert.NotNil(t, handler.ErrorStats)

	// 非法次数按单次尝试处理
	assert.Equal(t, 1, NewErrorHandler(0, 0).MaxRetries)
}

func TestRetry(t *testing.T) {
	InitLogger(LogLevelNormal, "")
	ctx := context.Background()

	handler := NewErrorHandler(3, 0.01) // 使用很小的延迟以加速测试

	// 测试成功的情况
	callCount := 0
	err := handler.Retry(ctx, "test_success", func() error {
		callCount++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)

	// 可重试错误：重试直到成功
	callCount = 0
	err = handler.Retry(ctx, "test_retry_success", func() error {
		callCount++
		if callCount < 2 {
			return NewBackendUnavailableError("local", errors.New("连接被拒绝"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, callCount)

	// 可重试错误：总是失败
	callCount = 0
	err = handler.Retry(ctx, "test_always_fail", func() error {
		callCount++
		return NewBackendUnavailableError("local", errors.New("超时"))
	})
	assert.Error(t, err)
	assert.Equal(t, handler.MaxRetries, callCount)
	assert.True(t, IsRetryable(err))

	// 不可重试的错误立即返回
	callCount = 0
	plain := errors.New("解析失败")
	err = handler.Retry(ctx, "test_not_retryable", func() error {
		callCount++
		return plain
	})
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, callCount)

	stats := handler.GetErrorStats()
	assert.Equal(t, 3, len(stats))
	assert.Equal(t, 3, stats["test_always_fail"]["识别服务 local 不可用: 超时"])
	assert.Equal(t, 1, stats["test_not_retryable"]["解析失败"])
}

func TestRetryRespectsContext(t *testing.T) {
	handler := NewErrorHandler(5, 5)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := handler.Retry(ctx, "cancelled", func() error {
		calls++
		return NewBackendUnavailableError("cloud", errors.New("超时"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSafeExecute(t *testing.T) {
	InitLogger(LogLevelNormal, "")

	handler := NewErrorHandler(3, 0.01)

	executed := false
	cleaned := false

	err := handler.SafeExecute("test_safe_success", func() error {
		executed = true
		return nil
	}, func() {
		cleaned = true
	})

	assert.NoError(t, err)
	assert.True(t, executed)
	assert.False(t, cleaned) // 成功执行不应该调用清理函数

	executed = false
	cleaned = false
	testErr := errors.New("预期错误")

	err = handler.SafeExecute("test_safe_fail", func() error {
		executed = true
		return testErr
	}, func() {
		cleaned = true
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, testErr)
	assert.True(t, executed)
	assert.True(t, cleaned) // 失败执行应该调用清理函数

	stats := handler.GetErrorStats()
	assert.Equal(t, 1, stats["test_safe_fail"]["预期错误"])
}

func TestErrorStats(t *testing.T) {
	InitLogger(LogLevelNormal, "")

	handler := NewErrorHandler(3, 0.01)

	handler.updateErrorStats("op1", "err1")
	handler.updateErrorStats("op1", "err1") // 重复错误
	handler.updateErrorStats("op1", "err2") // 同一操作不同错误
	handler.Record("op2", errors.New("err3"))
	handler.Record("op3", nil)

	stats := handler.GetErrorStats()
	assert.Equal(t, 2, len(stats))
	assert.Equal(t, 2, stats["op1"]["err1"])
	assert.Equal(t, 1, stats["op1"]["err2"])
	assert.Equal(t, 1, stats["op2"]["err3"])

	handler.PrintErrorStats()
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("ffprobe exited 1")

	extraction := NewExtractionError("a.wav", cause)
	var ee *ExtractionError
	assert.True(t, errors.As(extraction, &ee))
	assert.Equal(t, "a.wav", ee.Path)
	assert.ErrorIs(t, extraction, cause)
	assert.False(t, IsRetryable(extraction))

	unavailable := NewBackendUnavailableError("openai_whisper_1", cause)
	assert.True(t, IsRetryable(unavailable))
	assert.Contains(t, unavailable.Error(), "openai_whisper_1")

	malformed := &MalformedReportError{Path: "r.json", Cause: cause}
	assert.ErrorIs(t, malformed, cause)

	wrapped := NewError("外层", ErrCredentialMissing)
	assert.ErrorIs(t, wrapped, ErrCredentialMissing)
}
