// Package scanner 将元数据中的样本解析为磁盘上的录音文件
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
)

// SampleFile 表示一个已在磁盘上找到的样本
type SampleFile struct {
	Sample  models.Sample
	Path    string    // 绝对路径
	Size    int64     // 文件大小（字节）
	ModTime time.Time // 修改时间
}

// SampleScanner 用于在样本根目录中定位录音文件
type SampleScanner struct {
	BaseDir         string
	AudioExtensions []string
}

// NewSampleScanner 创建新的样本扫描器
func NewSampleScanner(baseDir string) *SampleScanner {
	return &SampleScanner{
		BaseDir:         baseDir,
		AudioExtensions: []string{".wav", ".flac", ".mp3", ".m4a", ".ogg", ".aac", ".aiff"},
	}
}

// ParseIDList 解析逗号分隔的样本ID列表，如 "13,14,15"；空字符串返回 nil
func ParseIDList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	seen := make(map[int]bool)
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("无效的样本ID %q: %w", part, err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("样本ID列表为空: %q", raw)
	}
	return ids, nil
}

// FilterByIDs 按ID筛选样本并保持元数据顺序，ids 为空时返回全部样本
func FilterByIDs(samples []models.Sample, ids []int) []models.Sample {
	if len(ids) == 0 {
		return append([]models.Sample(nil), samples...)
	}

	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var filtered []models.Sample
	found := make(map[int]bool)
	for _, s := range samples {
		if wanted[s.ID] {
			filtered = append(filtered, s)
			found[s.ID] = true
		}
	}

	for _, id := range ids {
		if !found[id] {
			logrus.Warnf("元数据中没有样本 %d", id)
		}
	}
	return filtered
}

// SamplePath 返回样本文件的绝对路径
func (s *SampleScanner) SamplePath(sample models.Sample) string {
	path := sample.Filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.BaseDir, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

// Resolve 定位样本文件，返回存在的样本与缺失的样本，均保持输入顺序
func (s *SampleScanner) Resolve(samples []models.Sample) ([]SampleFile, []models.Sample) {
	var found []SampleFile
	var missing []models.Sample

	for _, sample := range samples {
		path := s.SamplePath(sample)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			logrus.Warnf("跳过样本 %d: 文件不存在 - %s", sample.ID, sample.Filename)
			missing = append(missing, sample)
			continue
		}
		found = append(found, SampleFile{
			Sample:  sample,
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	logrus.Infof("共找到 %d 个样本文件，缺失 %d 个", len(found), len(missing))
	return found, missing
}

// IndexByPath 建立 绝对路径 -> 样本ID 的索引
func (s *SampleScanner) IndexByPath(samples []models.Sample) map[string]int {
	index := make(map[string]int, len(samples))
	for _, sample := range samples {
		index[s.SamplePath(sample)] = sample.ID
	}
	return index
}

// IsAudioFile 判断文件扩展名是否为支持的音频格式
func (s *SampleScanner) IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, audioExt := range s.AudioExtensions {
		if ext == audioExt {
			return true
		}
	}
	return false
}

// FindUnreferenced 扫描根目录，返回元数据未引用的音频文件（跳过隐藏文件和目录）
func (s *SampleScanner) FindUnreferenced(samples []models.Sample) ([]string, error) {
	index := s.IndexByPath(samples)
	root, err := filepath.Abs(s.BaseDir)
	if err != nil {
		return nil, err
	}

	var unreferenced []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.IsAudioFile(path) {
			return nil
		}
		if _, ok := index[filepath.Clean(path)]; !ok {
			unreferenced = append(unreferenced, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unreferenced, nil
}
