package hub

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-room-backend/internal/metrics"
	"github.com/DoyleJ11/coop-room-backend/internal/room"
)

var ErrStopped = errors.New("hub stopped")

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the open room for Code, creating it if needed.
type EnsureRoom struct {
	Code  string
	Reply chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room // nil if there is no open room
}

// RemoveRoom forgets Code only while it still maps to Room.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox chan HubMsg
	rooms map[string]*room.Room
	opts  room.Options
	log   *zap.Logger
	stats *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub starts the registry. Every room it creates gets a copy of opts; OnClose
// is reserved for the hub.
func NewHub(parent context.Context, opts room.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		log:    opts.Logger,
		stats:  opts.Metrics,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) submit(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ask[T any](ctx context.Context, h *Hub, build func(chan T) HubMsg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := h.submit(ctx, build(reply)); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) Ensure(ctx context.Context, code string) (*room.Room, error) {
	return ask(ctx, h, func(reply chan *room.Room) HubMsg { return EnsureRoom{Code: code, Reply: reply} })
}

// nil if no open room
func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	return ask(ctx, h, func(reply chan *room.Room) HubMsg { return GetRoom{Code: code, Reply: reply} })
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	return ask(ctx, h, func(reply chan []string) HubMsg { return ListRooms{Reply: reply} })
}

// Shutdown stops every room and the hub, then waits for them or ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.submit(ctx, ShutdownHub{}); err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if rm := h.rooms[msg.Code]; rm != nil && !rm.Closed() {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.open(msg.Code)

			case GetRoom:
				if rm := h.rooms[msg.Code]; rm != nil && !rm.Closed() {
					msg.Reply <- rm
					break
				}
				msg.Reply <- nil

			case RemoveRoom:
				if h.rooms[msg.Code] == msg.Room {
					h.forget(msg.Code)
				}

			case ListRooms:
				codes := make([]string, 0, len(h.rooms))
				for code, rm := range h.rooms {
					if !rm.Closed() {
						codes = append(codes, code)
					}
				}
				slices.Sort(codes)
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// open creates a room, replacing a closed one whose removal is still queued.
func (h *Hub) open(code string) *room.Room {
	if _, ok := h.rooms[code]; ok {
		h.forget(code)
	}

	opts := h.opts
	opts.OnClose = func(rm *room.Room) {
		select {
		case h.inbox <- RemoveRoom{Code: rm.Code(), Room: rm}:
		case <-h.ctx.Done():
		}
	}
	// TODO: reap rooms nobody joins within a grace period; today they live until shutdown.
	rm := room.New(h.ctx, code, opts)
	h.rooms[code] = rm
	h.stats.RoomOpened()
	h.log.Info("hub.room_opened", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
	return rm
}

func (h *Hub) forget(code string) {
	delete(h.rooms, code)
	h.stats.RoomClosed()
	h.log.Info("hub.room_removed", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
}

// shutdown cancels every room (they run under h.ctx) and waits for them to stop.
func (h *Hub) shutdown() {
	h.cancel()
	for code, rm := range h.rooms {
		<-rm.Done()
		h.forget(code)
	}
}
