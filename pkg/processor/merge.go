package processor

import (
	"sort"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
)

// MergeEvaluations 合并已有评估与本次评估
//
// 已有评估中属于 targetIDs 的样本被丢弃（即使本次评估失败），其余原样保留；
// 本次评估覆盖同ID的旧结果，合并结果按 sample_id 升序排列。
func MergeEvaluations(prior, fresh []models.SampleEvaluation, targetIDs []int) []models.SampleEvaluation {
	targeted := make(map[int]bool, len(targetIDs))
	for _, id := range targetIDs {
		targeted[id] = true
	}

	byID := make(map[int]models.SampleEvaluation, len(prior)+len(fresh))
	for _, e := range prior {
		if targeted[e.SampleID] {
			continue
		}
		byID[e.SampleID] = e
	}
	for _, e := range fresh {
		byID[e.SampleID] = e
	}

	merged := make([]models.SampleEvaluation, 0, len(byID))
	for _, e := range byID {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].SampleID < merged[j].SampleID
	})
	return merged
}
