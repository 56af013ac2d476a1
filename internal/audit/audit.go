// Package audit keeps an append-only trail of lock and round events. The trail
// is write-only: rooms are never rebuilt from it.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Entry struct {
	RoomCode   string
	Version    int
	Kind       string
	Actor      string
	ProposalID string
	Reason     string
	Prompt     string
	At         time.Time
}

// Sink accepts entries without blocking the caller.
type Sink interface {
	Record(e Entry)
}

// Writer persists a batch of entries.
type Writer interface {
	Insert(ctx context.Context, entries []Entry) error
}

type Nop struct{}

func (Nop) Record(Entry) {}

// Recorder buffers entries and writes them in batches from its own goroutine.
// When the buffer is full new entries are dropped.
type Recorder struct {
	w       Writer
	log     *zap.Logger
	queue   chan Entry
	maxWait time.Duration
}

func NewRecorder(w Writer, buffer int, log *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{w: w, log: log, queue: make(chan Entry, buffer), maxWait: 500 * time.Millisecond}
}

func (r *Recorder) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("audit.dropped", zap.String("room", e.RoomCode), zap.String("kind", e.Kind), zap.Int("version", e.Version))
	}
}

// Run writes batches until ctx is done, then flushes whatever is still queued.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.maxWait)
	defer ticker.Stop()

	var batch []Entry
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.w.Insert(ctx, batch); err != nil {
			r.log.Error("audit.write", zap.Error(err), zap.Int("entries", len(batch)))
		}
		batch = nil
	}

	for {
		select {
		case e := <-r.queue:
			batch = append(batch, e)
			if len(batch) >= cap(r.queue) {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					batch = append(batch, e)
				default:
					flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					flush(flushCtx)
					cancel()
					return nil
				}
			}
		}
	}
}
