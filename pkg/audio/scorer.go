package audio

import (
	"math"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
)

// Score 计算 0-100 的综合音质分
//
// 采样率 15 分、位深 10 分、信噪比 25 分、平均电平 20 分、削波 15 分、动态范围 15 分。
// 位深与信噪比未知时给中间分。
func Score(m models.AudioMetrics) float64 {
	score := sampleRateScore(m.SampleRate) +
		bitDepthScore(m.BitDepth) +
		snrScore(m.EstimatedSNRDB) +
		rmsScore(m.RMSLevelDB) +
		15*(1-m.ClippingRatio) +
		dynamicRangeScore(m.DynamicRangeDB)

	return math.Min(100, math.Max(0, score))
}

func sampleRateScore(rate int) float64 {
	switch {
	case rate >= 48000:
		return 15
	case rate >= 44100:
		return 12
	case rate >= 22050:
		return 8
	default:
		return 5
	}
}

func bitDepthScore(depth *int) float64 {
	if depth == nil {
		return 6
	}
	switch {
	case *depth >= 24:
		return 10
	case *depth >= 16:
		return 8
	default:
		return 5
	}
}

func snrScore(snr *float64) float64 {
	if snr == nil {
		return 12
	}
	switch {
	case *snr >= 40:
		return 25
	case *snr >= 30:
		return 20
	case *snr >= 20:
		return 15
	case *snr >= 10:
		return 10
	default:
		return 5
	}
}

// 最佳区间约为 -18 至 -12 dB
func rmsScore(rms float64) float64 {
	switch {
	case rms >= -20 && rms <= -10:
		return 20
	case rms >= -25 && rms <= -8:
		return 15
	case rms >= -30 && rms <= -6:
		return 10
	default:
		return 5
	}
}

func dynamicRangeScore(dr float64) float64 {
	switch {
	case dr >= 30 && dr <= 60:
		return 15
	case dr >= 20 && dr <= 70:
		return 12
	case dr >= 15 && dr <= 80:
		return 8
	default:
		return 5
	}
}
