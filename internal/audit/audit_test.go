package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memWriter struct {
	mu      sync.Mutex
	entries []Entry
	batches int
}

func (w *memWriter) Insert(_ context.Context, entries []Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entries...)
	w.batches++
	return nil
}

func (w *memWriter) snapshot() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Entry(nil), w.entries...)
}

func TestRecorder_FlushesOnShutdown(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w, 16, zaptest.NewLogger(t))

	r.Record(Entry{RoomCode: "R1", Version: 1, Kind: "PENDING"})
	r.Record(Entry{RoomCode: "R1", Version: 2, Kind: "COMMITTED"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}

	got := w.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "PENDING", got[0].Kind)
	assert.Equal(t, "COMMITTED", got[1].Kind)
	assert.False(t, got[0].At.IsZero(), "timestamp must be filled in")
}

func TestRecorder_FlushesOnTick(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w, 16, zaptest.NewLogger(t))
	r.maxWait = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	r.Record(Entry{RoomCode: "R1", Version: 1, Kind: "PENDING"})
	assert.Eventually(t, func() bool { return len(w.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w, 2, zaptest.NewLogger(t))

	for v := 1; v <= 3; v++ {
		r.Record(Entry{RoomCode: "R1", Version: v, Kind: "PENDING"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	got := w.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].Version)
}

func TestToRow(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := toRow(Entry{RoomCode: "R1", Version: 3, Kind: "CANCELED", Actor: "SERVER", Reason: "OWNER_DISCONNECTED", At: at})

	assert.Equal(t, Event{RoomCode: "R1", Version: 3, Kind: "CANCELED", Actor: "SERVER", Reason: "OWNER_DISCONNECTED", CreatedAt: at}, row)
	assert.Equal(t, "audit_events", row.TableName())
}
