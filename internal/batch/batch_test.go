package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/pipeline"
)

type fakeExtractor struct {
	mu       sync.Mutex
	fail     map[string]error
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	events   []string
}

func (f *fakeExtractor) RunWithProgress(ctx context.Context, src ingest.Source, cb pipeline.ProgressCallback) (*ledger.Document, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if cb != nil {
		cb.OnStage(pipeline.StageEvent{Stage: pipeline.StageIngest, Status: "done"})
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := f.fail[src.Path]; err != nil {
		return nil, err
	}
	return &ledger.Document{ID: src.Path, Transactions: make([]ledger.Transaction, 2)}, nil
}

type recordingCallback struct {
	f    *fakeExtractor
	path string
}

func (r recordingCallback) OnStage(ev pipeline.StageEvent) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.events = append(r.f.events, r.path+":"+ev.Stage)
}

func TestProcessKeepsInputOrder(t *testing.T) {
	ext := &fakeExtractor{delay: time.Millisecond}
	paths := []string{"a.png", "b.png", "c.png", "d.png"}

	res, err := Process(context.Background(), ext, paths, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 4)
	for i, it := range res.Items {
		assert.Equal(t, paths[i], it.Path)
		assert.Equal(t, paths[i], it.Document.ID)
	}
	assert.Equal(t, 2, res.Workers)
	assert.LessOrEqual(t, ext.peak.Load(), int32(2))
	assert.NoError(t, res.Err())
}

func TestProcessContinuesAfterFailure(t *testing.T) {
	ext := &fakeExtractor{fail: map[string]error{"b.png": errors.New("boom")}}

	res, err := Process(context.Background(), ext, []string{"a.png", "b.png", "c.png"}, Options{Workers: 1})
	require.NoError(t, err)

	docs := res.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "a.png", docs[0].ID)
	assert.Equal(t, "c.png", docs[1].ID)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b.png", failed[0].Path)
	assert.EqualError(t, res.Err(), "1 of 3 file(s) failed")

	stats := res.Stats()
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.Transactions)
}

func TestProcessProgressPerFile(t *testing.T) {
	ext := &fakeExtractor{}
	opts := Options{Workers: 1, Progress: func(path string) pipeline.ProgressCallback {
		return recordingCallback{f: ext, path: path}
	}}

	_, err := Process(context.Background(), ext, []string{"a.png", "b.png"}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png:ingest", "b.png:ingest"}, ext.events)
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Process(ctx, &fakeExtractor{delay: time.Second}, []string{"a.png", "b.png"}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessNoFiles(t *testing.T) {
	_, err := Process(context.Background(), &fakeExtractor{}, nil, Options{})
	assert.Error(t, err)
}

func TestOptionsWorkers(t *testing.T) {
	assert.Equal(t, 1, Options{Workers: 8}.workers(1))
	assert.Equal(t, 3, Options{Workers: 3}.workers(10))
	assert.GreaterOrEqual(t, Options{}.workers(100), 1)
}
