package ws

import (
	"errors"
	"sync"

	"github.com/DoyleJ11/coop-room-backend/internal/protocol"
)

var errOutboxClosed = errors.New("outbox closed")
var errOutboxFull = errors.New("outbox full")

// outbox is the room-facing side of a connection. Send never blocks: a full
// buffer means the client is not keeping up, and the outbox closes itself so
// the writer stops and the room prunes the member.
type outbox struct {
	mu     sync.Mutex
	ch     chan protocol.Message
	closed bool
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = 1
	}
	return &outbox{ch: make(chan protocol.Message, size)}
}

func (o *outbox) Send(m protocol.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOutboxClosed
	}
	select {
	case o.ch <- m:
		return nil
	default:
		o.closeLocked()
		return errOutboxFull
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked()
}

func (o *outbox) closeLocked() {
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
