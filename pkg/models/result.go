package models

// TranscriptionResult 某个识别后端对一个样本的识别结果
type TranscriptionResult struct {
	Service               string   `json:"service"`                 // 后端标识
	Text                  string   `json:"text"`                    // 原始识别文本
	WER                   float64  `json:"wer"`                     // 词错误率
	CER                   float64  `json:"cer"`                     // 字符错误率
	ProcessingTimeSeconds *float64 `json:"processing_time_seconds"` // 识别耗时（秒）
	RunDate               *string  `json:"run_date"`                // 运行日期 YYYY-MM-DD
}

// SampleEvaluation 单个样本的完整评估结果，构造后不再修改
type SampleEvaluation struct {
	SampleID          int                   `json:"sample_id"`
	Filename          string                `json:"filename"`
	Microphone        Microphone            `json:"microphone"`
	AudioMetrics      AudioMetrics          `json:"audio_metrics"`
	AudioQualityScore float64               `json:"audio_quality_score"`
	Transcriptions    []TranscriptionResult `json:"transcriptions"`
}

// Transcription 按后端标识查找识别结果
func (e SampleEvaluation) Transcription(service string) (TranscriptionResult, bool) {
	for _, t := range e.Transcriptions {
		if t.Service == service {
			return t, true
		}
	}
	return TranscriptionResult{}, false
}

// Services 返回该样本拥有结果的后端列表，保持识别顺序
func (e SampleEvaluation) Services() []string {
	services := make([]string, 0, len(e.Transcriptions))
	for _, t := range e.Transcriptions {
		services = append(services, t.Service)
	}
	return services
}
