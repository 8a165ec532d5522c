// Package watcher 监控样本目录，录音文件变化时触发重新评估
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// FileEventHandler 是处理文件事件的接口
type FileEventHandler interface {
	OnFileCreated(filePath string)
	OnFileModified(filePath string)
	OnFileDeleted(filePath string)
}

// pendingEvent 去抖期间累积的文件事件
type pendingEvent struct {
	timer   *time.Timer
	created bool
}

// FolderMonitor 递归监控文件夹变化
type FolderMonitor struct {
	watcher        *fsnotify.Watcher
	folderPath     string
	fileExtensions []string
	handler        FileEventHandler
	debounceTime   time.Duration
	pendingFiles   map[string]*pendingEvent
	mutex          sync.Mutex
	stopChan       chan struct{}
	stopOnce       sync.Once
	started        bool
	done           chan struct{}
}

// NewFolderMonitor 创建新的文件夹监控器
func NewFolderMonitor(folderPath string, extensions []string, handler FileEventHandler, debounceTime time.Duration) (*FolderMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		normalized = append(normalized, strings.ToLower(ext))
	}

	return &FolderMonitor{
		watcher:        watcher,
		folderPath:     folderPath,
		fileExtensions: normalized,
		handler:        handler,
		debounceTime:   debounceTime,
		pendingFiles:   make(map[string]*pendingEvent),
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// Start 开始监控文件夹及其子目录
func (m *FolderMonitor) Start() error {
	info, err := os.Stat(m.folderPath)
	if err != nil {
		return fmt.Errorf("监控目录不可用: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s 不是目录", m.folderPath)
	}

	if err := m.addTree(m.folderPath); err != nil {
		return fmt.Errorf("添加监控文件夹失败: %w", err)
	}

	m.mutex.Lock()
	m.started = true
	m.mutex.Unlock()
	go m.watchLoop()

	utils.Info("开始监控文件夹: %s", m.folderPath)
	return nil
}

// Stop 停止监控，可重复调用
func (m *FolderMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.watcher.Close()

		m.mutex.Lock()
		started := m.started
		m.mutex.Unlock()
		if started {
			<-m.done
		}

		m.mutex.Lock()
		for path, pending := range m.pendingFiles {
			pending.timer.Stop()
			delete(m.pendingFiles, path)
		}
		m.mutex.Unlock()

		utils.Info("停止监控文件夹: %s", m.folderPath)
	})
}

// addTree 监控目录及其非隐藏子目录
func (m *FolderMonitor) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return m.watcher.Add(path)
	})
}

// watchLoop 监控循环
func (m *FolderMonitor) watchLoop() {
	defer close(m.done)
	for {
		select {
		case <-m.stopChan:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleFileEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			utils.Error("监控文件夹时出错: %v", err)
		}
	}
}

// 处理文件事件
func (m *FolderMonitor) handleFileEvent(event fsnotify.Event) {
	filePath := filepath.Clean(event.Name)

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if !m.hasTargetExtension(filePath) {
			return
		}
		m.mutex.Lock()
		if pending, exists := m.pendingFiles[filePath]; exists {
			pending.timer.Stop()
			delete(m.pendingFiles, filePath)
		}
		m.mutex.Unlock()
		if m.handler != nil {
			m.handler.OnFileDeleted(filePath)
		}
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// 新建的子目录也需要监控
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(filePath); err == nil && info.IsDir() {
			if err := m.addTree(filePath); err != nil {
				utils.Warn("添加子目录监控失败 %s: %v", filePath, err)
			}
			return
		}
	}

	if !m.isTargetFile(filePath) {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	pending, exists := m.pendingFiles[filePath]
	if exists {
		pending.timer.Stop()
	} else {
		pending = &pendingEvent{}
		m.pendingFiles[filePath] = pending
	}
	if event.Op&fsnotify.Create != 0 {
		pending.created = true
	}
	pending.timer = time.AfterFunc(m.debounceTime, func() {
		m.processFile(filePath)
	})

	utils.Debug("检测到文件变化: %s", filePath)
}

func (m *FolderMonitor) hasTargetExtension(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, targetExt := range m.fileExtensions {
		if ext == targetExt {
			return true
		}
	}
	return false
}

// 判断是否为目标文件类型
func (m *FolderMonitor) isTargetFile(filePath string) bool {
	fileInfo, err := os.Stat(filePath)
	if err != nil || fileInfo.IsDir() {
		return false
	}
	if strings.HasPrefix(filepath.Base(filePath), ".") {
		return false
	}
	return m.hasTargetExtension(filePath)
}

// 去抖结束后分发事件
func (m *FolderMonitor) processFile(filePath string) {
	m.mutex.Lock()
	pending, exists := m.pendingFiles[filePath]
	delete(m.pendingFiles, filePath)
	m.mutex.Unlock()

	if !exists || m.handler == nil {
		return
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return
	}

	if pending.created {
		m.handler.OnFileCreated(filePath)
	} else {
		m.handler.OnFileModified(filePath)
	}
}
