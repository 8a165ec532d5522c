package processor

import (
	"sync"
	"time"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
)

// SampleState 样本评估状态
type SampleState int

const (
	StatePending SampleState = iota
	StateMetricsComputed
	StateBackendAttempted
	StateFinalized
	StateFailed
)

func (s SampleState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateMetricsComputed:
		return "metrics_computed"
	case StateBackendAttempted:
		return "backend_attempted"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressEvent 样本状态变化事件
type ProgressEvent struct {
	SampleID  int
	State     SampleState
	Backend   string // 仅 StateBackendAttempted 时有值
	Err       error
	Completed int // 已结束的样本数
	Total     int
}

// ProgressCallback 进度回调函数
type ProgressCallback func(event ProgressEvent)

// SampleResult 单个样本的评估结果
type SampleResult struct {
	Sample     models.Sample
	Evaluation *models.SampleEvaluation // 失败时为 nil
	Err        error
	Duration   time.Duration
}

// Succeeded 样本是否完成评估
func (r SampleResult) Succeeded() bool {
	return r.Err == nil && r.Evaluation != nil
}

// BatchStats 批量评估统计
type BatchStats struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Evaluations 按输入顺序收集成功的样本评估
func Evaluations(results []SampleResult) []models.SampleEvaluation {
	evals := make([]models.SampleEvaluation, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			evals = append(evals, *r.Evaluation)
		}
	}
	return evals
}

// Summarize 统计批量评估结果
func Summarize(results []SampleResult) BatchStats {
	stats := BatchStats{Total: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		stats.Duration += r.Duration
	}
	return stats
}

// progressTracker 串行化进度回调并统计已结束的样本
type progressTracker struct {
	mu        sync.Mutex
	total     int
	completed int
	callback  ProgressCallback
}

func newProgressTracker(total int, callback ProgressCallback) *progressTracker {
	return &progressTracker{total: total, callback: callback}
}

func (t *progressTracker) emit(sampleID int, state SampleState, backend string, err error) {
	if t.callback == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback(ProgressEvent{
		SampleID:  sampleID,
		State:     state,
		Backend:   backend,
		Err:       err,
		Completed: t.completed,
		Total:     t.total,
	})
}

func (t *progressTracker) finish(sampleID int, state SampleState, err error) {
	t.mu.Lock()
	t.completed++
	t.mu.Unlock()
	t.emit(sampleID, state, "", err)
}
