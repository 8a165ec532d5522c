package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

type recordingHandler struct {
	mu       sync.Mutex
	created  []string
	modified []string
	deleted  []string
}

func (h *recordingHandler) OnFileCreated(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, filePath)
}

func (h *recordingHandler) OnFileModified(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modified = append(h.modified, filePath)
}

func (h *recordingHandler) OnFileDeleted(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, filePath)
}

func (h *recordingHandler) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.created), len(h.modified), len(h.deleted)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("等待超时")
}

func TestDebounceCollapsesEvents(t *testing.T) {
	dir := t.TempDir()
	handler := &recordingHandler{}

	monitor, err := NewFolderMonitor(dir, []string{".WAV"}, handler, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("创建监控器失败: %v", err)
	}
	target := filepath.Join(dir, "1.wav")
	if err := os.WriteFile(target, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	// 直接注入事件，不依赖平台通知时序
	monitor.handleFileEvent(fsnotify.Event{Name: target, Op: fsnotify.Create})
	monitor.handleFileEvent(fsnotify.Event{Name: target, Op: fsnotify.Write})
	monitor.handleFileEvent(fsnotify.Event{Name: target, Op: fsnotify.Write})

	waitFor(t, func() bool {
		c, _, _ := handler.counts()
		return c == 1
	})
	time.Sleep(100 * time.Millisecond)

	created, modified, _ := handler.counts()
	if created != 1 || modified != 0 {
		t.Fatalf("期望一次创建事件，实际 created=%d modified=%d", created, modified)
	}
	if handler.created[0] != target {
		t.Fatalf("路径不匹配: %s", handler.created[0])
	}
	monitor.Stop()
}

func TestWriteOnlyIsModification(t *testing.T) {
	dir := t.TempDir()
	handler := &recordingHandler{}

	monitor, err := NewFolderMonitor(dir, []string{".wav"}, handler, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer monitor.Stop()

	target := filepath.Join(dir, "2.wav")
	if err := os.WriteFile(target, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	monitor.handleFileEvent(fsnotify.Event{Name: target, Op: fsnotify.Write})

	waitFor(t, func() bool {
		_, m, _ := handler.counts()
		return m == 1
	})
}

func TestIgnoresNonTargetFiles(t *testing.T) {
	dir := t.TempDir()
	handler := &recordingHandler{}

	monitor, err := NewFolderMonitor(dir, []string{".wav"}, handler, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer monitor.Stop()

	notes := filepath.Join(dir, "notes.txt")
	hidden := filepath.Join(dir, ".3.wav")
	for _, p := range []string{notes, hidden} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		monitor.handleFileEvent(fsnotify.Event{Name: p, Op: fsnotify.Create})
	}
	// 不存在的文件
	monitor.handleFileEvent(fsnotify.Event{Name: filepath.Join(dir, "4.wav"), Op: fsnotify.Create})

	time.Sleep(100 * time.Millisecond)
	c, m, d := handler.counts()
	if c+m+d != 0 {
		t.Fatalf("不应触发任何事件: %d %d %d", c, m, d)
	}
}

func TestRemoveCancelsPending(t *testing.T) {
	dir := t.TempDir()
	handler := &recordingHandler{}

	monitor, err := NewFolderMonitor(dir, []string{".wav"}, handler, 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer monitor.Stop()

	target := filepath.Join(dir, "5.wav")
	if err := os.WriteFile(target, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	monitor.handleFileEvent(fsnotify.Event{Name: target, Op: fsnotify.Create})
	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}
	monitor.handleFileEvent(fsnotify.Event{Name: target, Op: fsnotify.Remove})

	time.Sleep(300 * time.Millisecond)
	c, m, d := handler.counts()
	if c != 0 || m != 0 || d != 1 {
		t.Fatalf("期望仅一次删除事件，实际 %d %d %d", c, m, d)
	}
}

func TestStartWatchesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "batch1")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	handler := &recordingHandler{}

	monitor, err := NewFolderMonitor(dir, []string{".wav"}, handler, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := monitor.Start(); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	defer monitor.Stop()

	if err := os.WriteFile(filepath.Join(sub, "6.wav"), []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		c, m, _ := handler.counts()
		return c+m >= 1
	})
}

func TestStartRejectsMissingDir(t *testing.T) {
	monitor, err := NewFolderMonitor(filepath.Join(t.TempDir(), "none"), []string{".wav"}, nil, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer monitor.Stop()

	if err := monitor.Start(); err == nil {
		t.Fatal("期望目录不存在时报错")
	}
}
