package asr

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// BackendStats 后端调用统计
type BackendStats struct {
	SuccessCount int
	TotalCount   int
	Healthy      bool
}

type registeredBackend struct {
	backend Backend
	limit   *semaphore.Weighted // nil 表示不限并发
	stats   *BackendStats
}

// Registry 按注册顺序管理识别后端，负责并发限制与调用统计
type Registry struct {
	mu       sync.RWMutex
	backends []*registeredBackend
	index    map[string]int
}

// NewRegistry 创建后端注册表
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register 注册后端，maxConcurrent <= 0 表示不限制并发调用数
func (r *Registry) Register(backend Backend, maxConcurrent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := backend.Name()
	if _, exists := r.index[name]; exists {
		return fmt.Errorf("识别后端已注册: %s", name)
	}

	entry := &registeredBackend{
		backend: backend,
		stats:   &BackendStats{Healthy: true},
	}
	if maxConcurrent > 0 {
		entry.limit = semaphore.NewWeighted(int64(maxConcurrent))
	}
	r.index[name] = len(r.backends)
	r.backends = append(r.backends, entry)

	utils.Log.Infof("注册识别后端: %s, 并发上限: %d", name, maxConcurrent)
	return nil
}

// Names 按注册顺序返回后端标识
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.backend.Name())
	}
	return names
}

// Len 已注册的后端数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// Transcribe 在并发限制内调用指定后端并记录结果
func (r *Registry) Transcribe(ctx context.Context, name, audioPath string) (Transcript, error) {
	r.mu.RLock()
	idx, ok := r.index[name]
	var entry *registeredBackend
	if ok {
		entry = r.backends[idx]
	}
	r.mu.RUnlock()

	if !ok {
		return Transcript{}, fmt.Errorf("未知的识别后端: %s", name)
	}

	if entry.limit != nil {
		if err := entry.limit.Acquire(ctx, 1); err != nil {
			return Transcript{}, err
		}
		defer entry.limit.Release(1)
	}

	transcript, err := entry.backend.Transcribe(ctx, audioPath)
	r.ReportResult(name, err == nil && transcript.Text != "")
	return transcript, err
}

// ReportResult 报告后端调用结果
func (r *Registry) ReportResult(name string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, exists := r.index[name]
	if !exists {
		return
	}
	stat := r.backends[idx].stats
	if success {
		stat.SuccessCount++
	}
	stat.TotalCount++

	// 成功率过低时只做标记，评估仍会调用所有后端
	if !success && stat.Healthy && stat.TotalCount > 5 && float64(stat.SuccessCount)/float64(stat.TotalCount) < 0.2 {
		stat.Healthy = false
		utils.Log.Warnf("识别后端 %s 成功率过低", name)
	} else if success && !stat.Healthy {
		stat.Healthy = true
		utils.Log.Infof("识别后端 %s 恢复正常", name)
	}
}

// GetStats 获取后端调用统计信息
func (r *Registry) GetStats() map[string]map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]map[string]interface{})
	for _, b := range r.backends {
		stat := b.stats
		successRate := 0.0
		if stat.TotalCount > 0 {
			successRate = float64(stat.SuccessCount) / float64(stat.TotalCount) * 100
		}

		result[b.backend.Name()] = map[string]interface{}{
			"count":        stat.TotalCount,
			"success_rate": fmt.Sprintf("%.1f%%", successRate),
			"healthy":      stat.Healthy,
		}
	}
	return result
}
