// Package export 由样本评估结果生成评估报告
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

const qualityRankingKey = "by_audio_quality"

// 已知后端的排名键名
var rankingAliases = map[string]string{
	models.LocalWhisperService:  "local_whisper",
	models.OpenAIWhisperService: "openai_whisper",
}

// Report 评估报告，完全由样本评估集合推导
type Report struct {
	Summary          Summary                   `json:"summary"`
	Rankings         Rankings                  `json:"rankings"`
	CategoryAnalysis map[string]CategoryStats  `json:"category_analysis"`
	DetailedResults  []models.SampleEvaluation `json:"detailed_results"`
}

// Summary 报告概要
type Summary struct {
	TotalSamples       int  `json:"total_samples"`
	ReferenceTextWords int  `json:"reference_text_words"`
	OpenAIAPIAvailable bool `json:"openai_api_available"`
}

// QualityRankEntry 音质排名条目
type QualityRankEntry struct {
	Rank       int     `json:"rank"`
	SampleID   int     `json:"sample_id"`
	Microphone string  `json:"microphone"`
	Category   *string `json:"category"`
	Score      float64 `json:"score"`
}

// WERRankEntry 识别准确率排名条目
type WERRankEntry struct {
	Rank       int     `json:"rank"`
	SampleID   int     `json:"sample_id"`
	Microphone string  `json:"microphone"`
	WERPercent float64 `json:"wer_percent"`
}

// Rankings 音质排名与各后端的WER排名
type Rankings struct {
	ByAudioQuality []QualityRankEntry
	ByBackendWER   map[string][]WERRankEntry // 后端标识 -> 排名
}

// CategoryStats 按麦克风类别的汇总
type CategoryStats struct {
	Samples    []int    `json:"samples"`
	AvgQuality float64  `json:"avg_quality"`
	AvgWER     *float64 `json:"avg_wer"` // 参考后端无结果时为 null
}

// ReportInput 生成报告所需的输入
type ReportInput struct {
	Evaluations      []models.SampleEvaluation
	ReferenceText    string
	CloudConfigured  bool
	ReferenceBackend string // 类别平均WER使用的后端
}

// RankingKey 返回后端WER排名在报告中的键名
func RankingKey(service string) string {
	if alias, ok := rankingAliases[service]; ok {
		return "by_" + alias + "_wer"
	}
	return "by_" + service + "_wer"
}

// serviceFromRankingKey 由排名键名还原后端标识
func serviceFromRankingKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "by_") || !strings.HasSuffix(key, "_wer") || len(key) <= len("by__wer") {
		return "", false
	}
	alias := strings.TrimSuffix(strings.TrimPrefix(key, "by_"), "_wer")
	for service, a := range rankingAliases {
		if a == alias {
			return service, true
		}
	}
	return alias, true
}

// rankingKeys 为一组后端分配互不冲突的排名键名
//
// 原始标识恰好等于某个已知后端的别名时，别名键归原始标识，已知后端改用完整标识。
func rankingKeys(services []string) map[string]string {
	present := make(map[string]bool, len(services))
	for _, service := range services {
		present[service] = true
	}

	keys := make(map[string]string, len(services))
	for _, service := range services {
		alias, ok := rankingAliases[service]
		if ok && present[alias] {
			keys[service] = "by_" + service + "_wer"
			continue
		}
		keys[service] = RankingKey(service)
	}
	return keys
}

// MarshalJSON 将排名展开为扁平的键值结构
func (r Rankings) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.ByBackendWER)+1)
	quality := r.ByAudioQuality
	if quality == nil {
		quality = []QualityRankEntry{}
	}
	out[qualityRankingKey] = quality

	services := make([]string, 0, len(r.ByBackendWER))
	for service, entries := range r.ByBackendWER {
		if len(entries) > 0 {
			services = append(services, service)
		}
	}
	sort.Strings(services)
	for service, key := range rankingKeys(services) {
		out[key] = r.ByBackendWER[service]
	}
	return json.Marshal(out)
}

// UnmarshalJSON 解析扁平的排名结构
func (r *Rankings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Rankings{ByBackendWER: make(map[string][]WERRankEntry)}
	for key, value := range raw {
		if key == qualityRankingKey {
			if err := json.Unmarshal(value, &r.ByAudioQuality); err != nil {
				return fmt.Errorf("解析排名 %s 失败: %w", key, err)
			}
			continue
		}
		service, ok := serviceFromRankingKey(key)
		if !ok {
			continue
		}
		// 已知后端以完整标识出现时，别名键属于同名的原始标识
		if alias, aliased := rankingAliases[service]; aliased && key == "by_"+alias+"_wer" {
			if _, full := raw["by_"+service+"_wer"]; full {
				service = alias
			}
		}
		var entries []WERRankEntry
		if err := json.Unmarshal(value, &entries); err != nil {
			return fmt.Errorf("解析排名 %s 失败: %w", key, err)
		}
		r.ByBackendWER[service] = entries
	}
	return nil
}

// BuildReport 由完整的样本评估集合生成报告，相同输入生成相同的报告
func BuildReport(input ReportInput) *Report {
	evals := input.Evaluations

	report := &Report{
		Summary: Summary{
			TotalSamples:       len(evals),
			ReferenceTextWords: len(strings.Fields(input.ReferenceText)),
			OpenAIAPIAvailable: input.CloudConfigured,
		},
		Rankings: Rankings{
			ByAudioQuality: qualityRanking(evals),
			ByBackendWER:   make(map[string][]WERRankEntry),
		},
		CategoryAnalysis: categoryAnalysis(evals, input.ReferenceBackend),
		DetailedResults:  make([]models.SampleEvaluation, 0, len(evals)),
	}

	for _, service := range collectServices(evals) {
		if entries := werRanking(evals, service); len(entries) > 0 {
			report.Rankings.ByBackendWER[service] = entries
		}
	}

	for _, e := range evals {
		detail := e
		detail.AudioQualityScore = round(e.AudioQualityScore, 1)
		detail.Transcriptions = append([]models.TranscriptionResult{}, e.Transcriptions...)
		report.DetailedResults = append(report.DetailedResults, detail)
	}

	return report
}

func qualityRanking(evals []models.SampleEvaluation) []QualityRankEntry {
	sorted := append([]models.SampleEvaluation(nil), evals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AudioQualityScore != sorted[j].AudioQualityScore {
			return sorted[i].AudioQualityScore > sorted[j].AudioQualityScore
		}
		return sorted[i].SampleID < sorted[j].SampleID
	})

	entries := make([]QualityRankEntry, 0, len(sorted))
	for i, e := range sorted {
		var category *string
		if e.Microphone.Category != "" {
			c := e.Microphone.Category
			category = &c
		}
		entries = append(entries, QualityRankEntry{
			Rank:       i + 1,
			SampleID:   e.SampleID,
			Microphone: e.Microphone.DisplayName(),
			Category:   category,
			Score:      round(e.AudioQualityScore, 1),
		})
	}
	return entries
}

func werRanking(evals []models.SampleEvaluation, service string) []WERRankEntry {
	type scored struct {
		eval models.SampleEvaluation
		wer  float64
	}
	var candidates []scored
	for _, e := range evals {
		if t, ok := e.Transcription(service); ok {
			candidates = append(candidates, scored{eval: e, wer: t.WER})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].wer != candidates[j].wer {
			return candidates[i].wer < candidates[j].wer
		}
		return candidates[i].eval.SampleID < candidates[j].eval.SampleID
	})

	entries := make([]WERRankEntry, 0, len(candidates))
	for i, c := range candidates {
		entries = append(entries, WERRankEntry{
			Rank:       i + 1,
			SampleID:   c.eval.SampleID,
			Microphone: c.eval.Microphone.DisplayName(),
			WERPercent: round(c.wer*100, 2),
		})
	}
	return entries
}

func categoryAnalysis(evals []models.SampleEvaluation, referenceBackend string) map[string]CategoryStats {
	type accumulator struct {
		samples    []int
		qualitySum float64
		werSum     float64
		werCount   int
	}

	groups := make(map[string]*accumulator)
	for _, e := range evals {
		key := e.Microphone.CategoryOrUnknown()
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.samples = append(acc.samples, e.SampleID)
		acc.qualitySum += e.AudioQualityScore
		if t, ok := e.Transcription(referenceBackend); ok {
			acc.werSum += t.WER
			acc.werCount++
		}
	}

	result := make(map[string]CategoryStats, len(groups))
	for key, acc := range groups {
		stats := CategoryStats{
			Samples:    acc.samples,
			AvgQuality: acc.qualitySum / float64(len(acc.samples)),
		}
		if acc.werCount > 0 {
			avg := acc.werSum / float64(acc.werCount)
			stats.AvgWER = &avg
		}
		result[key] = stats
	}
	return result
}

// collectServices 收集所有出现过的后端标识，按字典序返回
func collectServices(evals []models.SampleEvaluation) []string {
	seen := make(map[string]bool)
	var services []string
	for _, e := range evals {
		for _, s := range e.Services() {
			if !seen[s] {
				seen[s] = true
				services = append(services, s)
			}
		}
	}
	sort.Strings(services)
	return services
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// Evaluations 从报告还原样本评估集合，数值保持原样
func (r *Report) Evaluations() []models.SampleEvaluation {
	out := make([]models.SampleEvaluation, len(r.DetailedResults))
	copy(out, r.DetailedResults)
	return out
}

// WriteReport 写入报告，先写临时文件再原子替换
func WriteReport(path string, report *Report) error {
	if err := utils.SaveJSONFile(path, report); err != nil {
		return fmt.Errorf("写入评估报告失败: %w", err)
	}
	utils.Info("评估报告已保存: %s", path)
	return nil
}

// LoadReport 读取已有报告，内容无法读取或解析时返回 *utils.MalformedReportError
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, &utils.MalformedReportError{Path: path, Cause: err}
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, &utils.MalformedReportError{Path: path, Cause: err}
	}

	seen := make(map[int]bool, len(report.DetailedResults))
	for _, e := range report.DetailedResults {
		if seen[e.SampleID] {
			return nil, &utils.MalformedReportError{Path: path, Cause: fmt.Errorf("样本 %d 重复", e.SampleID)}
		}
		seen[e.SampleID] = true
	}
	return &report, nil
}
