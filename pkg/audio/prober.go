package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// Prober 探测音频文件的外部工具
type Prober interface {
	// ProbeStreams 读取容器与流信息
	ProbeStreams(ctx context.Context, path string) (*ProbeResult, error)
	// DetectLevels 读取峰值与平均电平
	DetectLevels(ctx context.Context, path string) (Levels, error)
	// SampleRMS 读取逐帧 RMS 电平（dBFS）
	SampleRMS(ctx context.Context, path string) ([]float64, error)
}

// ProbeResult ffprobe -print_format json 的输出
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream 单个流的信息
type ProbeStream struct {
	CodecType        string `json:"codec_type"`
	CodecName        string `json:"codec_name"`
	SampleRate       string `json:"sample_rate"`
	Channels         int    `json:"channels"`
	BitsPerSample    int    `json:"bits_per_sample"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
}

// ProbeFormat 容器信息，ffprobe 以字符串输出数值
type ProbeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

// AudioStream 返回第一个音频流
func (r *ProbeResult) AudioStream() (ProbeStream, bool) {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return s, true
		}
	}
	return ProbeStream{}, false
}

// Levels volumedetect 给出的电平
type Levels struct {
	PeakDB float64
	MeanDB float64
}

// 缺失时的默认电平
const (
	defaultPeakDB = 0.0
	defaultMeanDB = -20.0
	// 数字静音时 volumedetect 输出 -inf
	silentLevelDB = -100.0
)

var (
	maxVolumeRe  = regexp.MustCompile(`max_volume:\s*(\S+)\s*dB`)
	meanVolumeRe = regexp.MustCompile(`mean_volume:\s*(\S+)\s*dB`)
)

// FFmpegProber 通过 ffprobe/ffmpeg 命令探测音频
type FFmpegProber struct {
	ffprobe []string
	ffmpeg  []string
}

// NewFFmpegProber 创建探测器，命令可以带前缀参数（如 docker run ... ffprobe）
func NewFFmpegProber(ffprobeCommand, ffmpegCommand string) (*FFmpegProber, error) {
	ffprobe, err := utils.ParseCommand(ffprobeCommand)
	if err != nil {
		return nil, fmt.Errorf("ffprobe 命令无效: %w", err)
	}
	ffmpeg, err := utils.ParseCommand(ffmpegCommand)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg 命令无效: %w", err)
	}
	return &FFmpegProber{ffprobe: ffprobe, ffmpeg: ffmpeg}, nil
}

// ProbeStreams 实现 Prober
func (p *FFmpegProber) ProbeStreams(ctx context.Context, path string) (*ProbeResult, error) {
	args := append(append([]string{}, p.ffprobe[1:]...),
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	cmd := exec.CommandContext(ctx, p.ffprobe[0], args...)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe 执行失败: %w", err)
	}
	return ParseProbeOutput(output)
}

// DetectLevels 实现 Prober
func (p *FFmpegProber) DetectLevels(ctx context.Context, path string) (Levels, error) {
	stderr, err := p.runFFmpeg(ctx, path, "volumedetect")
	if err != nil {
		return Levels{}, err
	}
	return ParseVolumeDetect(stderr), nil
}

// SampleRMS 实现 Prober
func (p *FFmpegProber) SampleRMS(ctx context.Context, path string) ([]float64, error) {
	stderr, err := p.runFFmpeg(ctx, path,
		"astats=metadata=1:reset=1,ametadata=print:key=lavfi.astats.Overall.RMS_level")
	if err != nil {
		return nil, err
	}
	return ParseRMSLevels(stderr), nil
}

// runFFmpeg 以空输出运行滤镜并返回 stderr；非零退出码不视为错误，由解析结果决定
func (p *FFmpegProber) runFFmpeg(ctx context.Context, path, filter string) (string, error) {
	args := append(append([]string{}, p.ffmpeg[1:]...),
		"-nostdin", "-i", path, "-af", filter, "-f", "null", "-")
	cmd := exec.CommandContext(ctx, p.ffmpeg[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("ffmpeg 执行失败: %w", err)
		}
		utils.Debug("ffmpeg 退出码非零 (%s): %v", filter, err)
	}
	return stderr.String(), nil
}

// ParseProbeOutput 解析 ffprobe JSON 输出
func ParseProbeOutput(output []byte) (*ProbeResult, error) {
	if len(bytes.TrimSpace(output)) == 0 {
		return nil, errors.New("ffprobe 输出为空")
	}
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("解析 ffprobe 输出失败: %w", err)
	}
	return &result, nil
}

// ParseVolumeDetect 从 volumedetect 的 stderr 中解析电平，缺失项使用默认值
func ParseVolumeDetect(stderr string) Levels {
	levels := Levels{PeakDB: defaultPeakDB, MeanDB: defaultMeanDB}
	if v, ok := matchFloat(maxVolumeRe, stderr); ok {
		levels.PeakDB = v
	}
	if v, ok := matchFloat(meanVolumeRe, stderr); ok {
		levels.MeanDB = v
	}
	return levels
}

func matchFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 1) {
		return 0, false
	}
	if math.IsInf(v, -1) {
		return silentLevelDB, true
	}
	return v, true
}

// ParseRMSLevels 从 ametadata 输出中解析逐帧 RMS 电平，无法解析的行被跳过
func ParseRMSLevels(stderr string) []float64 {
	var values []float64
	for _, line := range strings.Split(stderr, "\n") {
		if !strings.Contains(line, "RMS_level") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return values
}
