// Package adapters 将文件监控事件转换为样本重新评估
package adapters

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// Reevaluator 以合并模式重新评估指定样本
type Reevaluator interface {
	Reevaluate(ctx context.Context, sampleIDs []int) error
}

// ReevaluationAdapter 实现 watcher.FileEventHandler，样本文件变化时触发重新评估
type ReevaluationAdapter struct {
	ctx         context.Context
	evaluator   Reevaluator
	index       map[string]int
	mu          sync.Mutex // 串行化报告写入
	lastErr     error
	reevaluated []int
}

// NewReevaluationAdapter 创建适配器，index 为 绝对路径 -> 样本ID
func NewReevaluationAdapter(ctx context.Context, evaluator Reevaluator, index map[string]int) *ReevaluationAdapter {
	return &ReevaluationAdapter{
		ctx:       ctx,
		evaluator: evaluator,
		index:     index,
	}
}

// OnFileCreated 新增样本文件
func (a *ReevaluationAdapter) OnFileCreated(filePath string) {
	a.handle(filePath)
}

// OnFileModified 样本文件被覆盖
func (a *ReevaluationAdapter) OnFileModified(filePath string) {
	a.handle(filePath)
}

// OnFileDeleted 删除的样本保留上次结果
func (a *ReevaluationAdapter) OnFileDeleted(filePath string) {
	if id, ok := a.lookup(filePath); ok {
		utils.WithSample(id).Warnf("样本文件已删除，保留已有评估结果: %s", filePath)
	}
}

// SampleID 查找文件对应的样本
func (a *ReevaluationAdapter) SampleID(filePath string) (int, bool) {
	return a.lookup(filePath)
}

// Reevaluated 返回已触发重新评估的样本ID
func (a *ReevaluationAdapter) Reevaluated() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.reevaluated...)
}

// LastError 最近一次重新评估的错误
func (a *ReevaluationAdapter) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *ReevaluationAdapter) lookup(filePath string) (int, bool) {
	path := filePath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	id, ok := a.index[filepath.Clean(path)]
	return id, ok
}

func (a *ReevaluationAdapter) handle(filePath string) {
	id, ok := a.lookup(filePath)
	if !ok {
		utils.Debug("忽略未登记的文件: %s", filePath)
		return
	}
	if a.ctx.Err() != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	utils.WithSample(id).Infof("样本文件已更新，重新评估: %s", filePath)
	err := a.evaluator.Reevaluate(a.ctx, []int{id})
	a.lastErr = err
	a.reevaluated = append(a.reevaluated, id)
	if err != nil {
		utils.WithSample(id).Errorf("重新评估失败: %v", err)
	}
}
