// Package controller 协调一次完整的评估运行与监控模式
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ccp-p/asr-media-cli/mic-eval/internal/adapters"
	"github.com/ccp-p/asr-media-cli/mic-eval/internal/telemetry"
	"github.com/ccp-p/asr-media-cli/mic-eval/internal/ui"
	"github.com/ccp-p/asr-media-cli/mic-eval/internal/watcher"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/asr"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/audio"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/export"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/history"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/processor"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/scanner"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

const (
	tracerName    = "github.com/ccp-p/asr-media-cli/mic-eval/internal/controller"
	evaluationBar = "evaluation"
)

// RunOptions 单次运行参数
type RunOptions struct {
	SampleIDs []int // 为空时评估元数据中的全部样本
	Merge     bool  // 与已有报告合并
}

// RunStats 运行统计
type RunStats struct {
	StartTime      time.Time
	TotalSamples   int
	Succeeded      int
	Failed         int
	MissingSamples int
}

type statsProvider interface {
	GetStats() map[string]map[string]interface{}
}

// Option 定制控制器的组件
type Option func(*Controller)

// WithExtractor 替换音频指标提取器
func WithExtractor(extractor processor.MetricsExtractor) Option {
	return func(c *Controller) { c.extractor = extractor }
}

// WithTranscriber 替换识别后端集合
func WithTranscriber(transcriber processor.Transcriber) Option {
	return func(c *Controller) { c.transcriber = transcriber }
}

// WithOutput 设置进度与统计的输出位置
func WithOutput(out io.Writer) Option {
	return func(c *Controller) { c.out = out }
}

// WithClock 设置运行日期使用的时钟
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// Controller 评估控制器，协调各个组件工作
type Controller struct {
	Config          *models.Config
	ProgressManager *ui.ProgressManager
	ErrorHandler    *utils.ErrorHandler
	Scanner         *scanner.SampleScanner
	RunID           string
	Stats           RunStats

	extractor   processor.MetricsExtractor
	transcriber processor.Transcriber
	history     *history.Store
	clock       func() time.Time
	out         io.Writer

	ctx        context.Context
	cancelFunc context.CancelFunc

	// 资源管理
	cleanup []func()
	mu      sync.Mutex
	runMu   sync.Mutex // 同一时间只允许一次运行写报告
}

// NewController 创建评估控制器，cfg 必须已通过验证
func NewController(cfg *models.Config, opts ...Option) (*Controller, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		Config:       cfg,
		ErrorHandler: utils.NewErrorHandler(cfg.MaxRetries, cfg.RetryDelay),
		Scanner:      scanner.NewSampleScanner(cfg.BaseDir),
		RunID:        uuid.NewString(),
		clock:        time.Now,
		out:          os.Stdout,
		ctx:          ctx,
		cancelFunc:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ProgressManager = ui.NewProgressManagerTo(c.out, cfg.ShowProgress)

	if err := c.initComponents(); err != nil {
		c.Cleanup()
		return nil, err
	}
	return c, nil
}

// 初始化所有组件
func (c *Controller) initComponents() error {
	shutdown, err := telemetry.Setup(c.Config.TraceFile, c.RunID)
	if err != nil {
		return fmt.Errorf("初始化追踪失败: %w", err)
	}
	c.addCleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			utils.Warn("关闭追踪失败: %v", err)
		}
	})

	if c.extractor == nil {
		prober, err := audio.NewFFmpegProber(c.Config.FFprobeCommand, c.Config.FFmpegCommand)
		if err != nil {
			return fmt.Errorf("初始化音频探测失败: %w", err)
		}
		c.extractor = audio.NewMetricsExtractor(prober)
	}

	if c.transcriber == nil {
		registry, err := asr.BuildRegistry(c.Config)
		if err != nil {
			return fmt.Errorf("初始化识别后端失败: %w", err)
		}
		c.transcriber = registry
	}

	if c.Config.HistoryDB != "" {
		store, err := history.Open(c.ctx, c.Config.ResolvePath(c.Config.HistoryDB))
		if err != nil {
			return err
		}
		c.history = store
		c.addCleanup(func() { store.Close() })
	}

	utils.WithField("run_id", c.RunID).Info("评估控制器已初始化")
	return nil
}

// Context 返回控制器的上下文，收到中断信号后被取消
func (c *Controller) Context() context.Context {
	return c.ctx
}

// HandleSignals 注册中断处理
func (c *Controller) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ch:
			utils.Info("接收到中断信号，正在停止...")
			c.cancelFunc()
		case <-c.ctx.Done():
		}
		signal.Stop(ch)
	}()
}

// Stop 取消正在进行的运行
func (c *Controller) Stop() {
	c.cancelFunc()
}

// Run 执行一次评估并写出报告
func (c *Controller) Run(ctx context.Context, opts RunOptions) (*export.Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "evaluation_run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", c.RunID),
		attribute.Bool("merge", opts.Merge),
	)

	c.Stats = RunStats{StartTime: c.clock()}
	log := utils.WithField("run_id", c.RunID)

	// 运行前的全部校验失败都在处理任何样本之前终止
	meta, err := models.LoadMetadata(c.Config.ResolvePath(c.Config.MetadataFile))
	if err != nil {
		return nil, err
	}
	referenceText, err := models.LoadReferenceText(c.Config.ResolvePath(c.Config.ReferenceTextFile))
	if err != nil {
		return nil, err
	}

	pipeline, err := processor.NewPipeline(c.extractor, c.transcriber, referenceText, processor.Options{
		MaxWorkers:   c.Config.MaxWorkers,
		ErrorHandler: c.ErrorHandler,
		Progress:     c.progressCallback,
		Clock:        c.clock,
	})
	if err != nil {
		return nil, err
	}

	samples := meta.Samples
	if len(opts.SampleIDs) > 0 {
		samples = scanner.FilterByIDs(samples, opts.SampleIDs)
	}

	resultsPath := c.Config.ResolvePath(c.Config.ResultsFile)
	var prior []models.SampleEvaluation
	if opts.Merge {
		prior, err = c.loadPrior(resultsPath)
		if err != nil {
			return nil, err
		}
	}

	log.Infof("参考文本单词数: %d", len(strings.Fields(referenceText)))
	if c.Config.CloudConfigured() {
		log.Info("云端识别: 已配置")
	} else {
		log.Info("云端识别: 未配置")
	}

	files, missing := c.Scanner.Resolve(samples)
	c.Stats.MissingSamples = len(missing)
	c.Stats.TotalSamples = len(files)
	for _, f := range files {
		utils.WithSample(f.Sample.ID).Debugf("样本文件: %s (%s)", f.Path, utils.FormatFileSize(f.Size))
	}
	c.warnUnreferenced(meta.Samples)

	// 进度条显示期间日志只写文件
	if c.ProgressManager.Enabled() && c.Config.LogFile != "" {
		utils.EnableTerminalProgress()
	}
	c.ProgressManager.CreateProgressBar(evaluationBar, len(files), "评估样本", "准备中...")
	results, err := pipeline.Evaluate(ctx, files)
	utils.DisableTerminalProgress()
	if err != nil {
		c.ProgressManager.CompleteProgressBar(evaluationBar, "已取消")
		return nil, err
	}
	c.ProgressManager.CompleteProgressBar(evaluationBar, "已完成")

	batch := processor.Summarize(results)
	c.Stats.Succeeded = batch.Succeeded
	c.Stats.Failed = batch.Failed

	evals := processor.Evaluations(results)
	fresh := evals
	if opts.Merge {
		targetIDs := make([]int, 0, len(samples))
		for _, s := range samples {
			targetIDs = append(targetIDs, s.ID)
		}
		evals = processor.MergeEvaluations(prior, fresh, targetIDs)
		log.Infof("合并结果: 保留 %d 个，本次评估 %d 个", len(evals)-len(fresh), len(fresh))
	}

	report := export.BuildReport(export.ReportInput{
		Evaluations:      evals,
		ReferenceText:    referenceText,
		CloudConfigured:  c.Config.CloudConfigured(),
		ReferenceBackend: c.Config.ReferenceBackend,
	})
	if err := export.WriteReport(resultsPath, report); err != nil {
		return nil, err
	}

	if c.history != nil && len(fresh) > 0 {
		err := c.ErrorHandler.SafeExecute("record_history", func() error {
			return c.history.Record(ctx, c.RunID, fresh)
		}, nil)
		if err != nil {
			// 历史记录失败不影响报告
			log.Warnf("写入历史记录失败: %v", err)
		}
	}

	span.SetAttributes(
		attribute.Int("samples.evaluated", c.Stats.Succeeded),
		attribute.Int("samples.failed", c.Stats.Failed),
	)
	return report, nil
}

// Reevaluate 以合并模式重新评估指定样本，供监控模式使用
func (c *Controller) Reevaluate(ctx context.Context, sampleIDs []int) error {
	_, err := c.Run(ctx, RunOptions{SampleIDs: sampleIDs, Merge: true})
	return err
}

// Watch 监控样本目录直到 ctx 被取消
func (c *Controller) Watch(ctx context.Context) error {
	if !utils.CheckDirExists(c.Config.BaseDir) {
		return fmt.Errorf("样本目录不存在: %s", c.Config.BaseDir)
	}
	meta, err := models.LoadMetadata(c.Config.ResolvePath(c.Config.MetadataFile))
	if err != nil {
		return err
	}

	adapter := adapters.NewReevaluationAdapter(ctx, c, c.Scanner.IndexByPath(meta.Samples))
	monitor, err := watcher.NewFolderMonitor(
		c.Config.BaseDir,
		c.Scanner.AudioExtensions,
		adapter,
		time.Duration(c.Config.WatchDebounceSeconds)*time.Second,
	)
	if err != nil {
		return err
	}
	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()

	utils.Info("监控已启动，按Ctrl+C退出...")
	<-ctx.Done()
	return nil
}

// ShowHistory 打印样本的历史识别记录，需要配置 history_db
func (c *Controller) ShowHistory(ctx context.Context, sampleID, limit int) error {
	if c.history == nil {
		return errors.New("未配置历史数据库 (history_db)")
	}
	runs, err := c.history.CountRuns(ctx)
	if err != nil {
		return fmt.Errorf("读取历史记录失败: %w", err)
	}
	entries, err := c.history.ListSample(ctx, sampleID, limit)
	if err != nil {
		return fmt.Errorf("读取历史记录失败: %w", err)
	}
	export.PrintHistory(c.out, sampleID, runs, entries)
	return nil
}

// 提示样本目录中没有被元数据引用的录音
func (c *Controller) warnUnreferenced(samples []models.Sample) {
	unreferenced, err := c.Scanner.FindUnreferenced(samples)
	if err != nil {
		c.ErrorHandler.Record("scan_unreferenced", err)
		utils.Warn("扫描样本目录失败: %v", err)
		return
	}
	for _, path := range unreferenced {
		utils.Warn("元数据未引用的录音文件: %s", path)
	}
}

// 读取已有报告；文件不存在时从空集合开始，格式错误时终止
func (c *Controller) loadPrior(path string) ([]models.SampleEvaluation, error) {
	report, err := export.LoadReport(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.Warn("未找到已有评估结果，将只包含本次评估: %s", path)
			return nil, nil
		}
		return nil, err
	}
	utils.Info("已加载 %d 个历史评估结果", len(report.DetailedResults))
	return report.Evaluations(), nil
}

func (c *Controller) progressCallback(event processor.ProgressEvent) {
	switch event.State {
	case processor.StateFinalized:
		c.ProgressManager.UpdateProgressBar(evaluationBar, event.Completed,
			fmt.Sprintf("样本 %d 完成", event.SampleID))
	case processor.StateFailed:
		c.ProgressManager.UpdateProgressBar(evaluationBar, event.Completed,
			fmt.Sprintf("样本 %d 跳过", event.SampleID))
	case processor.StateBackendAttempted:
		utils.WithSample(event.SampleID).WithField("backend", event.Backend).Debug("识别完成")
	}
}

// PrintStats 输出运行、后端和错误统计
func (c *Controller) PrintStats() {
	elapsed := c.clock().Sub(c.Stats.StartTime)
	fmt.Fprintln(c.out)
	color.New(color.FgCyan, color.Bold).Fprintln(c.out, "运行统计:")
	fmt.Fprintf(c.out, "  运行ID: %s\n", c.RunID)
	fmt.Fprintf(c.out, "  样本: %d, 成功: %d, 失败: %d, 缺失: %d\n",
		c.Stats.TotalSamples, c.Stats.Succeeded, c.Stats.Failed, c.Stats.MissingSamples)
	fmt.Fprintf(c.out, "  总用时: %s\n", utils.FormatTimeDuration(elapsed.Seconds()))

	if provider, ok := c.transcriber.(statsProvider); ok {
		stats := provider.GetStats()
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)

		color.New(color.FgCyan, color.Bold).Fprintln(c.out, "识别后端统计:")
		for _, name := range names {
			stat := stats[name]
			fmt.Fprintf(c.out, "  %s: 调用次数=%v, 成功率=%v, 可用=%v\n",
				name, stat["count"], stat["success_rate"], stat["healthy"])
		}
	}

	c.ErrorHandler.PrintErrorStats()
}

// 添加清理函数
func (c *Controller) addCleanup(cleanup func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup = append(c.cleanup, cleanup)
}

// Cleanup 逆序执行所有清理
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.cleanup = nil

	if c.ProgressManager != nil {
		c.ProgressManager.CloseAll("已完成")
	}
	utils.DisableTerminalProgress()
	c.cancelFunc()
}
