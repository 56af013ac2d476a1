package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-room-backend/internal/audit"
	"github.com/DoyleJ11/coop-room-backend/internal/engine"
	"github.com/DoyleJ11/coop-room-backend/internal/idgen"
	"github.com/DoyleJ11/coop-room-backend/internal/metrics"
	"github.com/DoyleJ11/coop-room-backend/internal/protocol"
)

var ErrClosed = errors.New("room closed")
var ErrAlreadyJoined = errors.New("client already joined")

// Outbox delivers messages to one participant. Send must not block; an error
// means the participant can no longer be reached.
// Implementations must be comparable; Leave matches on outbox identity.
type Outbox interface {
	Send(msg protocol.Message) error
}

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID engine.PlayerID
	Outbox   Outbox
	Reply    chan error // buffered; receives nil once the client is a member
}

func (Join) isRoomMsg() {}

// Leave with a non-nil Outbox only removes the member registered with that outbox.
type Leave struct {
	ClientID engine.PlayerID
	Outbox   Outbox
}

func (Leave) isRoomMsg() {}

type FromClient struct {
	ClientID engine.PlayerID
	Seq      json.RawMessage
	Cmd      engine.Command
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type expired struct{ ProposalID string }

func (expired) isRoomMsg() {}

type View struct {
	NumClients int
	State      engine.State
}

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Audit   audit.Sink

	// ProposalTimeout releases an uncommitted proposal after this long. Zero
	// leaves proposals pending until the owner acts or disconnects.
	ProposalTimeout time.Duration

	// Effect applies a committed proposal. Nil means commits have no effect.
	Effect engine.EffectFunc

	// NewProposalID defaults to idgen.ProposalID.
	NewProposalID func() string

	// OnClose runs on the room goroutine when the room stops, either because
	// its last member left or because it was shut down.
	OnClose func(*Room)
}

// Room serializes every operation on one room through a single goroutine.
// Fanout for an operation completes before the next message is read.
type Room struct {
	code    string
	inbox   chan Msg
	machine engine.Machine
	state   engine.State
	clients map[engine.PlayerID]Outbox
	dead    map[engine.PlayerID]struct{} // failed a delivery; pruned after the current operation

	opts   Options
	log    *zap.Logger
	timer  *time.Timer
	joined bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, code string, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}
	if opts.NewProposalID == nil {
		opts.NewProposalID = idgen.ProposalID
	}

	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		machine: engine.Machine{Effect: opts.Effect},
		state:   engine.NewState(code),
		clients: make(map[engine.PlayerID]Outbox),
		dead:    make(map[engine.PlayerID]struct{}),
		opts:    opts,
		log:     opts.Logger.With(zap.String("room", code)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Room) Submit(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers a participant and waits until it is a member. If ctx ends
// after the Join was queued, the member is removed again before Join returns.
func (r *Room) Join(ctx context.Context, id engine.PlayerID, out Outbox) error {
	reply := make(chan error, 1)
	if err := r.Submit(ctx, Join{ClientID: id, Outbox: out, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		// The Join may still be applied; undo it for this outbox only.
		_ = r.Submit(context.WithoutCancel(ctx), Leave{ClientID: id, Outbox: out})
		return ctx.Err()
	}
}

func (r *Room) Leave(ctx context.Context, id engine.PlayerID) error {
	return r.Submit(ctx, Leave{ClientID: id})
}

// State returns a copy of the room state once every earlier message has been applied.
func (r *Room) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Submit(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				if _, ok := r.clients[msg.ClientID]; ok {
					msg.Reply <- ErrAlreadyJoined
					break
				}
				r.clients[msg.ClientID] = msg.Outbox
				r.deliver(msg.ClientID, protocol.NewWelcome(msg.ClientID, r.code))
				if err := r.apply(engine.Command{Type: engine.CmdJoin, Player: msg.ClientID}, nil); err != nil {
					delete(r.clients, msg.ClientID)
					msg.Reply <- err
					break
				}
				r.joined = true
				r.log.Info("room.join", zap.String("player", string(msg.ClientID)), zap.Int("members", len(r.clients)))
				msg.Reply <- nil

			case Leave:
				out, ok := r.clients[msg.ClientID]
				if !ok {
					// Already pruned after a failed delivery.
					break
				}
				if msg.Outbox != nil && msg.Outbox != out {
					// Same id, different connection.
					break
				}
				r.remove(msg.ClientID)
				r.log.Info("room.leave", zap.String("player", string(msg.ClientID)), zap.Int("members", len(r.clients)))

			case FromClient:
				r.handleClient(msg)

			case expired:
				if err := r.apply(engine.Command{Type: engine.CmdExpire, ProposalID: msg.ProposalID}, nil); err == nil {
					r.log.Info("room.proposal_expired", zap.String("proposal", msg.ProposalID))
				}

			case GetState:
				msg.Reply <- View{NumClients: len(r.clients), State: r.state.Clone()}

			case Shutdown:
				r.shutdown()
				return
			}

			r.reap()

			// A room lives until its last member is gone; a fresh room waits for its first.
			if r.joined && len(r.clients) == 0 {
				r.shutdown()
				return
			}
		}
	}
}

