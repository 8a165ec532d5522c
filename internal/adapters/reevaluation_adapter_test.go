package adapters

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReevaluator struct {
	mu    sync.Mutex
	calls [][]int
	err   error
}

func (f *fakeReevaluator) Reevaluate(ctx context.Context, sampleIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sampleIDs)
	return f.err
}

func TestAdapterTriggersReevaluation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "3.wav")
	fake := &fakeReevaluator{}

	adapter := NewReevaluationAdapter(context.Background(), fake, map[string]int{path: 3})

	adapter.OnFileCreated(path)
	adapter.OnFileModified(filepath.Join(dir, ".", "3.wav"))
	adapter.OnFileModified(filepath.Join(dir, "other.wav"))
	adapter.OnFileDeleted(path)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, []int{3}, fake.calls[0])
	assert.Equal(t, []int{3, 3}, adapter.Reevaluated())
	assert.NoError(t, adapter.LastError())

	id, ok := adapter.SampleID(path)
	assert.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestAdapterRecordsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.wav")
	boom := errors.New("报告写入失败")
	adapter := NewReevaluationAdapter(context.Background(), &fakeReevaluator{err: boom}, map[string]int{path: 1})

	adapter.OnFileModified(path)
	assert.ErrorIs(t, adapter.LastError(), boom)
}

func TestAdapterSkipsAfterCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.wav")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &fakeReevaluator{}

	adapter := NewReevaluationAdapter(ctx, fake, map[string]int{path: 1})
	adapter.OnFileCreated(path)

	assert.Empty(t, fake.calls)
	assert.Empty(t, adapter.Reevaluated())
}
