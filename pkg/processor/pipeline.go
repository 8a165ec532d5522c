// Package processor 编排样本评估：指标提取、质量评分、多后端识别与错误率计算
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/accuracy"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/asr"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/audio"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/scanner"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

const tracerName = "github.com/ccp-p/asr-media-cli/mic-eval/pkg/processor"

// MetricsExtractor 音频指标提取
type MetricsExtractor interface {
	Extract(ctx context.Context, path string) (models.AudioMetrics, error)
}

// Transcriber 按注册顺序调用识别后端，*asr.Registry 实现了该接口
type Transcriber interface {
	Names() []string
	Transcribe(ctx context.Context, name, audioPath string) (asr.Transcript, error)
}

// Options 评估流水线参数
type Options struct {
	MaxWorkers   int                 // 并发评估样本数，<=1 时顺序执行
	ErrorHandler *utils.ErrorHandler // 为空时每次调用只尝试一次
	Progress     ProgressCallback    // 可能在多个协程中被调用
	Clock        func() time.Time
	Tracer       trace.Tracer
}

// Pipeline 样本评估流水线
type Pipeline struct {
	extractor   MetricsExtractor
	transcriber Transcriber
	reference   string // 归一化后的参考文本
	opts        Options
}

// NewPipeline 创建评估流水线，参考文本归一化后为空时返回 accuracy.ErrEmptyReference
func NewPipeline(extractor MetricsExtractor, transcriber Transcriber, referenceText string, opts Options) (*Pipeline, error) {
	reference := accuracy.Normalize(referenceText)
	if reference == "" {
		return nil, accuracy.ErrEmptyReference
	}

	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.ErrorHandler == nil {
		opts.ErrorHandler = utils.NewErrorHandler(1, 0)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	return &Pipeline{
		extractor:   extractor,
		transcriber: transcriber,
		reference:   reference,
		opts:        opts,
	}, nil
}

// Evaluate 评估所有样本，全部样本结束后才返回，结果顺序与输入一致
//
// 单个样本失败不影响其他样本；只有 ctx 被取消时返回错误。
func (p *Pipeline) Evaluate(ctx context.Context, files []scanner.SampleFile) ([]SampleResult, error) {
	results := make([]SampleResult, len(files))
	tracker := newProgressTracker(len(files), p.opts.Progress)

	var g errgroup.Group
	g.SetLimit(p.opts.MaxWorkers)

	for i, file := range files {
		if ctx.Err() != nil {
			results[i] = SampleResult{Sample: file.Sample, Err: ctx.Err()}
			continue
		}
		i, file := i, file
		g.Go(func() error {
			start := time.Now()
			eval, err := p.evaluateSample(ctx, file, tracker)
			results[i] = SampleResult{
				Sample:     file.Sample,
				Evaluation: eval,
				Err:        err,
				Duration:   time.Since(start),
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// EvaluateSample 评估单个样本
func (p *Pipeline) EvaluateSample(ctx context.Context, file scanner.SampleFile) (*models.SampleEvaluation, error) {
	return p.evaluateSample(ctx, file, newProgressTracker(1, p.opts.Progress))
}

func (p *Pipeline) evaluateSample(ctx context.Context, file scanner.SampleFile, tracker *progressTracker) (*models.SampleEvaluation, error) {
	sample := file.Sample
	log := utils.WithSample(sample.ID)

	ctx, span := p.opts.Tracer.Start(ctx, "evaluate_sample", trace.WithAttributes(
		attribute.Int("sample.id", sample.ID),
		attribute.String("sample.filename", sample.Filename),
	))
	defer span.End()

	tracker.emit(sample.ID, StatePending, "", nil)
	log.Infof("评估样本 %d: %s", sample.ID, sample.Microphone.DisplayName())

	metrics, err := p.extractor.Extract(ctx, file.Path)
	if err != nil {
		log.Warnf("跳过样本 %d: %v", sample.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		tracker.finish(sample.ID, StateFailed, err)
		return nil, err
	}
	score := audio.Score(metrics)
	span.SetAttributes(attribute.Float64("audio.quality_score", score))
	tracker.emit(sample.ID, StateMetricsComputed, "", nil)

	runDate := utils.FormatRunDate(p.opts.Clock())
	transcriptions := make([]models.TranscriptionResult, 0, len(p.transcriber.Names()))

	for _, name := range p.transcriber.Names() {
		result, err := p.transcribe(ctx, file.Path, name, runDate)
		tracker.emit(sample.ID, StateBackendAttempted, name, err)
		if err != nil {
			if ctx.Err() != nil {
				tracker.finish(sample.ID, StateFailed, ctx.Err())
				return nil, ctx.Err()
			}
			log.WithField("backend", name).Warnf("识别失败: %v", err)
			continue
		}
		if result == nil {
			log.WithField("backend", name).Warn("识别结果为空，不计入结果")
			continue
		}
		log.WithField("backend", name).Infof("WER: %.2f%%, CER: %.2f%%", result.WER*100, result.CER*100)
		transcriptions = append(transcriptions, *result)
	}

	eval := &models.SampleEvaluation{
		SampleID:          sample.ID,
		Filename:          sample.Filename,
		Microphone:        sample.Microphone,
		AudioMetrics:      metrics,
		AudioQualityScore: score,
		Transcriptions:    transcriptions,
	}
	tracker.finish(sample.ID, StateFinalized, nil)
	return eval, nil
}

// transcribe 调用单个后端，文本为空时返回 nil 结果
func (p *Pipeline) transcribe(ctx context.Context, path, name, runDate string) (*models.TranscriptionResult, error) {
	ctx, span := p.opts.Tracer.Start(ctx, "transcribe", trace.WithAttributes(attribute.String("backend", name)))
	defer span.End()

	var transcript asr.Transcript
	err := p.opts.ErrorHandler.Retry(ctx, "transcribe_"+name, func() error {
		var err error
		transcript, err = p.transcriber.Transcribe(ctx, name, path)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return nil, err
	}
	if transcript.Text == "" {
		return nil, nil
	}

	wer, cer, err := accuracy.Rates(p.reference, accuracy.Normalize(transcript.Text))
	if err != nil {
		return nil, fmt.Errorf("计算错误率失败: %w", err)
	}
	span.SetAttributes(attribute.Float64("wer", wer), attribute.Float64("cer", cer))

	elapsed := transcript.Elapsed.Seconds()
	date := runDate
	return &models.TranscriptionResult{
		Service:               name,
		Text:                  transcript.Text,
		WER:                   wer,
		CER:                   cer,
		ProcessingTimeSeconds: &elapsed,
		RunDate:               &date,
	}, nil
}

// IsSkipped 判断样本是否因指标提取失败被跳过
func IsSkipped(err error) bool {
	var extractionErr *utils.ExtractionError
	return errors.As(err, &extractionErr)
}
