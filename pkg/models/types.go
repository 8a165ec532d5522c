package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AudioMetrics 表示单个录音文件的客观音频指标
type AudioMetrics struct {
	DurationSeconds float64  `json:"duration_seconds"`  // 时长（秒）
	SampleRate      int      `json:"sample_rate"`       // 采样率（Hz）
	Channels        int      `json:"channels"`          // 声道数
	BitDepth        *int     `json:"bit_depth"`         // 位深，未知时为 null
	Codec           string   `json:"codec"`             // 编码格式
	BitrateKbps     *float64 `json:"bitrate_kbps"`      // 码率（kbps），未知时为 null
	PeakAmplitudeDB float64  `json:"peak_amplitude_db"` // 峰值电平（dBFS）
	RMSLevelDB      float64  `json:"rms_level_db"`      // 平均电平（dBFS）
	EstimatedSNRDB  *float64 `json:"estimated_snr_db"`  // 估算信噪比，无底噪估计时为 null
	DynamicRangeDB  float64  `json:"dynamic_range_db"`  // 动态范围
	SilenceRatio    float64  `json:"silence_ratio"`     // 静音比例估计 [0,1]
	ClippingRatio   float64  `json:"clipping_ratio"`    // 削波比例估计 [0,1]
}

// microphoneKnownKeys 是 Microphone 中显式建模的字段
var microphoneKnownKeys = map[string]bool{
	"manufacturer": true,
	"model":        true,
	"category":     true,
}

// Microphone 麦克风描述，未建模的属性原样保留
type Microphone struct {
	Manufacturer string
	Model        string
	Category     string
	Attributes   map[string]json.RawMessage

	present map[string]bool
}

// DisplayName 返回 "厂商 型号" 形式的名称
func (m Microphone) DisplayName() string {
	return strings.TrimSpace(m.Manufacturer + " " + m.Model)
}

// CategoryOrUnknown 返回分类，为空时返回 unknown
func (m Microphone) CategoryOrUnknown() string {
	if m.Category == "" {
		return "unknown"
	}
	return m.Category
}

// MarshalJSON 合并显式字段与附加属性，键按字母序输出
func (m Microphone) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Attributes)+3)
	for k, v := range m.Attributes {
		out[k] = v
	}
	put := func(key, value string) error {
		if value == "" && !m.present[key] {
			return nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}
	if err := put("manufacturer", m.Manufacturer); err != nil {
		return nil, err
	}
	if err := put("model", m.Model); err != nil {
		return nil, err
	}
	if err := put("category", m.Category); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON 解析麦克风对象，保留未知属性
func (m *Microphone) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("解析麦克风信息失败: %w", err)
	}

	*m = Microphone{}
	for key, value := range raw {
		if !microphoneKnownKeys[key] {
			if m.Attributes == nil {
				m.Attributes = make(map[string]json.RawMessage)
			}
			m.Attributes[key] = value
			continue
		}

		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			// 非字符串的已知字段按附加属性保留
			if m.Attributes == nil {
				m.Attributes = make(map[string]json.RawMessage)
			}
			m.Attributes[key] = value
			continue
		}
		if m.present == nil {
			m.present = make(map[string]bool, 3)
		}
		m.present[key] = true
		switch key {
		case "manufacturer":
			m.Manufacturer = s
		case "model":
			m.Model = s
		case "category":
			m.Category = s
		}
	}
	return nil
}

// Sample 元数据中的一条录音样本
type Sample struct {
	ID         int        `json:"id"`
	Filename   string     `json:"filename"`
	Microphone Microphone `json:"microphone"`
	DistanceCM *float64   `json:"distance_cm,omitempty"`
}

// Metadata 录音样本元数据文件
type Metadata struct {
	Samples []Sample `json:"samples"`
}
