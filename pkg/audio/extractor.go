// Package audio 负责录音文件的客观指标提取与质量评分
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// 底噪估计参数
const (
	noiseFloorPercentile = 0.1
	noiseFloorCutoffDB   = -100.0
	defaultNoiseFloorDB  = -60.0
)

var errNoAudioStream = errors.New("文件中没有音频流")

// MetricsExtractor 音频指标提取器
type MetricsExtractor struct {
	prober Prober
}

// NewMetricsExtractor 创建音频指标提取器
func NewMetricsExtractor(prober Prober) *MetricsExtractor {
	return &MetricsExtractor{prober: prober}
}

// Extract 提取单个文件的音频指标，失败时返回 *utils.ExtractionError
func (e *MetricsExtractor) Extract(ctx context.Context, path string) (models.AudioMetrics, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.AudioMetrics{}, utils.NewExtractionError(path, err)
	}
	if info.IsDir() {
		return models.AudioMetrics{}, utils.NewExtractionError(path, fmt.Errorf("%s 是目录", path))
	}

	probe, err := e.prober.ProbeStreams(ctx, path)
	if err != nil {
		return models.AudioMetrics{}, utils.NewExtractionError(path, err)
	}
	stream, ok := probe.AudioStream()
	if !ok {
		return models.AudioMetrics{}, utils.NewExtractionError(path, errNoAudioStream)
	}

	levels, err := e.prober.DetectLevels(ctx, path)
	if err != nil {
		return models.AudioMetrics{}, utils.NewExtractionError(path, err)
	}

	rms, err := e.prober.SampleRMS(ctx, path)
	if err != nil {
		return models.AudioMetrics{}, utils.NewExtractionError(path, err)
	}

	metrics := DeriveMetrics(probe.Format, stream, levels, EstimateNoiseFloor(rms))
	utils.WithField("file", path).Debugf("音频指标: 采样率=%d 峰值=%.1fdB 平均=%.1fdB",
		metrics.SampleRate, metrics.PeakAmplitudeDB, metrics.RMSLevelDB)
	return metrics, nil
}

// EstimateNoiseFloor 取有效 RMS 值的第10百分位作为底噪，没有有效值时返回 -60 dB
func EstimateNoiseFloor(rmsValues []float64) float64 {
	valid := make([]float64, 0, len(rmsValues))
	for _, v := range rmsValues {
		if v > noiseFloorCutoffDB {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return defaultNoiseFloorDB
	}
	sort.Float64s(valid)
	idx := int(float64(len(valid)) * noiseFloorPercentile)
	return valid[idx]
}

// DeriveMetrics 由探测结果计算全部指标
func DeriveMetrics(format ProbeFormat, stream ProbeStream, levels Levels, noiseFloor float64) models.AudioMetrics {
	m := models.AudioMetrics{
		DurationSeconds: math.Max(0, parseFloatOr(format.Duration, 0)),
		SampleRate:      int(parseFloatOr(stream.SampleRate, 0)),
		Channels:        stream.Channels,
		BitDepth:        bitDepth(stream),
		Codec:           stream.CodecName,
		BitrateKbps:     bitrateKbps(format.BitRate),
		PeakAmplitudeDB: levels.PeakDB,
		RMSLevelDB:      levels.MeanDB,
	}
	if m.Codec == "" {
		m.Codec = "unknown"
	}

	// 0 dBFS 的底噪说明信号从未低于满幅，视为没有可用估计
	if noiseFloor != 0 {
		snr := levels.MeanDB - noiseFloor
		m.EstimatedSNRDB = &snr
		m.DynamicRangeDB = math.Abs(levels.PeakDB - noiseFloor)
		m.SilenceRatio = clamp01((noiseFloor + 60) / 60)
	} else {
		m.DynamicRangeDB = math.Abs(levels.PeakDB - levels.MeanDB)
		m.SilenceRatio = 0.1
	}

	if levels.PeakDB > -3 {
		m.ClippingRatio = clamp01((levels.PeakDB + 1) / 3)
	}
	return m
}

func bitDepth(stream ProbeStream) *int {
	bits := stream.BitsPerSample
	if bits == 0 {
		if v, err := strconv.Atoi(strings.TrimSpace(stream.BitsPerRawSample)); err == nil {
			bits = v
		}
	}
	if bits <= 0 {
		return nil
	}
	return &bits
}

func bitrateKbps(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return nil
	}
	kbps := v / 1000
	return &kbps
}

func parseFloatOr(raw string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
