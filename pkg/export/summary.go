package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/history"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
)

// 后端在终端摘要中的显示名
var backendTitles = map[string]string{
	models.LocalWhisperService:  "本地 Whisper",
	models.OpenAIWhisperService: "OpenAI Whisper",
}

// PrintSummary 在终端打印前 topN 名的排名与类别分析
func PrintSummary(w io.Writer, report *Report, topN int) {
	if topN <= 0 {
		topN = 5
	}
	heading := color.New(color.FgCyan, color.Bold)
	divider := strings.Repeat("-", 50)

	fmt.Fprintln(w, strings.Repeat("=", 60))
	heading.Fprintln(w, "评估结果摘要")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	heading.Fprintln(w, "\n音质排名 (综合评分):")
	fmt.Fprintln(w, divider)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range head(report.Rankings.ByAudioQuality, topN) {
		category := "-"
		if item.Category != nil {
			category = *item.Category
		}
		fmt.Fprintf(tw, "  #%d\t%s\t(%s)\t评分: %.1f\n", item.Rank, item.Microphone, category, item.Score)
	}
	tw.Flush()

	services := make([]string, 0, len(report.Rankings.ByBackendWER))
	for service := range report.Rankings.ByBackendWER {
		services = append(services, service)
	}
	sort.Slice(services, func(i, j int) bool {
		return RankingKey(services[i]) < RankingKey(services[j])
	})

	for _, service := range services {
		title, ok := backendTitles[service]
		if !ok {
			title = service
		}
		heading.Fprintf(w, "\n识别准确率排名 (%s, 按WER):\n", title)
		fmt.Fprintln(w, divider)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, item := range head(report.Rankings.ByBackendWER[service], topN) {
			fmt.Fprintf(tw, "  #%d\t%s\tWER: %.2f%%\n", item.Rank, item.Microphone, item.WERPercent)
		}
		tw.Flush()
	}

	categories := make([]string, 0, len(report.CategoryAnalysis))
	for cat := range report.CategoryAnalysis {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	heading.Fprintln(w, "\n类别分析:")
	fmt.Fprintln(w, divider)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, cat := range categories {
		data := report.CategoryAnalysis[cat]
		werStr := "N/A"
		if data.AvgWER != nil {
			werStr = fmt.Sprintf("%.2f%%", *data.AvgWER*100)
		}
		fmt.Fprintf(tw, "  %s\t样本数=%d\t平均音质=%.1f\t平均WER=%s\n", cat, len(data.Samples), data.AvgQuality, werStr)
	}
	tw.Flush()
}

// PrintHistory 打印单个样本在历次运行中的识别结果
func PrintHistory(w io.Writer, sampleID, totalRuns int, entries []history.Entry) {
	heading := color.New(color.FgCyan, color.Bold)

	heading.Fprintf(w, "样本 %d 的历史记录 (共 %d 次运行):\n", sampleID, totalRuns)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	if len(entries) == 0 {
		color.New(color.FgYellow).Fprintln(w, "  没有记录")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  日期\t后端\tWER\tCER\t音质\t耗时\t运行ID")
	for _, e := range entries {
		title, ok := backendTitles[e.Service]
		if !ok {
			title = e.Service
		}
		elapsed := "-"
		if e.ProcessingTimeSeconds != nil {
			elapsed = fmt.Sprintf("%.1fs", *e.ProcessingTimeSeconds)
		}
		runDate := e.RunDate
		if runDate == "" {
			runDate = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%.2f%%\t%.2f%%\t%.1f\t%s\t%s\n",
			runDate, title, e.WER*100, e.CER*100, e.QualityScore, elapsed, shortID(e.RunID))
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func head[T any](entries []T, n int) []T {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
