// Package ui 提供评估过程的终端进度显示
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ProgressBar 进度条结构
type ProgressBar struct {
	Total      int       // 总样本数
	Current    int       // 已结束的样本数
	Prefix     string    // 前缀
	Suffix     string    // 后缀，通常是当前样本和状态
	Width      int       // 进度条宽度
	FillChar   string    // 填充字符
	EmptyChar  string    // 空白字符
	StartTime  time.Time // 开始时间
	LastUpdate time.Time // 上次更新时间

	out io.Writer
	mu  sync.Mutex
}

// NewProgressBar 创建新的进度条，输出到标准输出
func NewProgressBar(total int, prefix string, suffix string) *ProgressBar {
	return NewProgressBarTo(os.Stdout, total, prefix, suffix)
}

// NewProgressBarTo 创建输出到指定 writer 的进度条
func NewProgressBarTo(out io.Writer, total int, prefix string, suffix string) *ProgressBar {
	return &ProgressBar{
		Total:      total,
		Prefix:     prefix,
		Suffix:     suffix,
		Width:      30,
		FillChar:   "█",
		EmptyChar:  "░",
		StartTime:  time.Now(),
		LastUpdate: time.Now(),
		out:        out,
	}
}

// Update 更新进度
func (p *ProgressBar) Update(current int, suffix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(current, suffix)
}

func (p *ProgressBar) update(current int, suffix string) {
	if current < 0 {
		return
	}
	if current > p.Total {
		current = p.Total
	}

	p.Current = current
	if suffix != "" {
		p.Suffix = suffix
	}
	p.LastUpdate = time.Now()
	p.draw()
}

// SetSuffix 只更新后缀
func (p *ProgressBar) SetSuffix(suffix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(p.Current, suffix)
}

// Increment 增加进度
func (p *ProgressBar) Increment(suffix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(p.Current+1, suffix)
}

// Complete 完成进度条
func (p *ProgressBar) Complete(suffix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(p.Total, suffix)
	fmt.Fprintln(p.out)
}

func (p *ProgressBar) percent() float64 {
	if p.Total <= 0 {
		return 1
	}
	return float64(p.Current) / float64(p.Total)
}

// 绘制进度条
func (p *ProgressBar) draw() {
	percent := p.percent()
	elapsed := time.Since(p.StartTime)

	// 估计剩余时间
	var remaining time.Duration
	if p.Current > 0 && percent < 1 {
		remaining = time.Duration(float64(elapsed) / percent * (1 - percent))
	}

	progressLine := fmt.Sprintf("\r\033[2K%s %s %3.0f%% | %d/%d | %s<%s | %s",
		p.Prefix, p.render(percent), percent*100, p.Current, p.Total,
		formatDuration(elapsed), formatDuration(remaining), p.Suffix)

	fmt.Fprint(p.out, color.CyanString(progressLine))
}

func (p *ProgressBar) render(percent float64) string {
	filled := int(percent * float64(p.Width))
	if filled > p.Width {
		filled = p.Width
	}
	return "[" + strings.Repeat(p.FillChar, filled) + strings.Repeat(p.EmptyChar, p.Width-filled) + "]"
}

// String 返回进度条的字符串表示
func (p *ProgressBar) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	percent := p.percent()
	return fmt.Sprintf("%s %s %3.0f%% | %d/%d", p.Prefix, p.render(percent), percent*100, p.Current, p.Total)
}

// 格式化持续时间为 MM:SS 格式
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
