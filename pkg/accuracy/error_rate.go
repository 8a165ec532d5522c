package accuracy

import (
	"errors"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ErrEmptyReference 参考文本为空，无法计算错误率
var ErrEmptyReference = errors.New("参考文本为空")

// 插入、删除、替换代价均为1
var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// WER 计算词错误率：词级编辑距离除以参考词数，结果可能大于1
func WER(reference, hypothesis string) (float64, error) {
	refWords := strings.Fields(reference)
	if len(refWords) == 0 {
		return 0, ErrEmptyReference
	}
	hypWords := strings.Fields(hypothesis)

	// 每个不同的词映射为一个符号，词序列即可按字符序列求编辑距离
	vocab := make(map[string]rune, len(refWords)+len(hypWords))
	ref := encodeWords(refWords, vocab)
	hyp := encodeWords(hypWords, vocab)

	distance := levenshtein.DistanceForStrings(ref, hyp, unitCost)
	return float64(distance) / float64(len(ref)), nil
}

// CER 计算字符错误率：字符级编辑距离（含空格）除以参考字符数
func CER(reference, hypothesis string) (float64, error) {
	refRunes := []rune(reference)
	if len(refRunes) == 0 {
		return 0, ErrEmptyReference
	}

	distance := levenshtein.DistanceForStrings(refRunes, []rune(hypothesis), unitCost)
	return float64(distance) / float64(len(refRunes)), nil
}

// Rates 同时计算 WER 与 CER，输入应已归一化
func Rates(reference, hypothesis string) (wer, cer float64, err error) {
	if wer, err = WER(reference, hypothesis); err != nil {
		return 0, 0, err
	}
	if cer, err = CER(reference, hypothesis); err != nil {
		return 0, 0, err
	}
	return wer, cer, nil
}

func encodeWords(words []string, vocab map[string]rune) []rune {
	out := make([]rune, len(words))
	for i, w := range words {
		id, ok := vocab[w]
		if !ok {
			id = rune(len(vocab) + 1)
			vocab[w] = id
		}
		out[i] = id
	}
	return out
}
