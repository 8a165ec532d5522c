package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// LoadMetadata 读取样本元数据文件
func LoadMetadata(path string) (*Metadata, error) {
	var meta Metadata
	if err := utils.ReadJSONFile(path, &meta); err != nil {
		return nil, fmt.Errorf("加载元数据文件失败: %w", err)
	}

	seen := make(map[int]bool, len(meta.Samples))
	for _, s := range meta.Samples {
		if seen[s.ID] {
			return nil, fmt.Errorf("元数据中样本ID重复: %d", s.ID)
		}
		seen[s.ID] = true
		if s.Filename == "" {
			return nil, fmt.Errorf("样本 %d 缺少文件名", s.ID)
		}
	}
	return &meta, nil
}

// FindSample 按ID查找样本
func (m *Metadata) FindSample(id int) (Sample, bool) {
	for _, s := range m.Samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

// LoadReferenceText 读取参考文本，转为小写并合并空白
func LoadReferenceText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取参考文本失败: %w", err)
	}
	return strings.Join(strings.Fields(strings.ToLower(string(data))), " "), nil
}
