package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/coop-room-backend/internal/engine"
	"github.com/DoyleJ11/coop-room-backend/internal/idgen"
	"github.com/DoyleJ11/coop-room-backend/internal/protocol"
	"github.com/DoyleJ11/coop-room-backend/internal/room"
)

var errSlowConsumer = errors.New("client too slow")

const joinAttempts = 3

// Rooms hands out the room a session joins. *hub.Hub satisfies it.
type Rooms interface {
	Ensure(ctx context.Context, code string) (*room.Room, error)
}

type Config struct {
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxPromptRunes int
	OriginPatterns []string
}

func (c Config) withDefaults() Config {
	if c.OutboxSize <= 0 {
		c.OutboxSize = 32
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	return c
}

// Handler serves GET /ws/{roomCode}.
func Handler(rooms Rooms, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "roomCode")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:  cfg.OriginPatterns,
			CompressionMode: websocket.CompressionDisabled,
		})
		if err != nil {
			log.Debug("ws.accept_failed", zap.String("room", code), zap.Error(err))
			return
		}

		s := &session{
			conn:  conn,
			code:  code,
			cfg:   cfg,
			out:   newOutbox(cfg.OutboxSize),
			rooms: rooms,
			newID: newPlayerID,
			log:   log.With(zap.String("room", code)),
		}

		err = s.run(r.Context())
		s.close(err)
	}
}

type session struct {
	conn  *websocket.Conn
	id    engine.PlayerID
	code  string
	cfg   Config
	out   *outbox
	rooms Rooms
	newID func() engine.PlayerID
	log   *zap.Logger
}

func newPlayerID() engine.PlayerID { return engine.PlayerID(idgen.PlayerID()) }

func (s *session) run(ctx context.Context) error {
	rm, err := s.join(ctx)
	if err != nil {
		return err
	}
	s.log = s.log.With(zap.String("player", string(s.id)))
	defer func() {
		// Blocks until the room takes the Leave or stops.
		err := rm.Submit(context.WithoutCancel(ctx), room.Leave{ClientID: s.id, Outbox: s.out})
		if err != nil && !errors.Is(err, room.ErrClosed) {
			s.log.Warn("ws.leave_failed", zap.Error(err))
		}
	}()
	s.log.Info("ws.session_started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error { return s.readLoop(gctx, rm) })
	g.Go(func() error {
		select {
		case <-rm.Done():
			return room.ErrClosed
		case <-gctx.Done():
			return nil
		}
	})

	return g.Wait()
}

// join retries when the room closes between Ensure and Join, and with a fresh
// id when the current one is already taken in the room.
func (s *session) join(ctx context.Context) (*room.Room, error) {
	var err error
	for range joinAttempts {
		if s.id == "" {
			s.id = s.newID()
		}
		var rm *room.Room
		rm, err = s.rooms.Ensure(ctx, s.code)
		if err != nil {
			return nil, err
		}
		err = rm.Join(ctx, s.id, s.out)
		switch {
		case err == nil:
			return rm, nil
		case errors.Is(err, room.ErrAlreadyJoined):
			s.log.Info("ws.id_collision", zap.String("player", string(s.id)))
			s.id = ""
		case !errors.Is(err, room.ErrClosed):
			return nil, err
		}
	}
	return nil, err
}

func (s *session) readLoop(ctx context.Context, rm *room.Room) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}

		cm, err := protocol.Decode(data)
		if err != nil {
			// Still goes through the room so the sender gets a proper REJECT.
			s.log.Debug("ws.bad_json", zap.Error(err))
		}
		cmd := protocol.ToCommand(cm, s.cfg.MaxPromptRunes)

		if err := rm.Submit(ctx, room.FromClient{ClientID: s.id, Seq: cm.Seq, Cmd: cmd}); err != nil {
			return err
		}
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case m, ok := <-s.out.ch:
			if !ok {
				return errSlowConsumer
			}
			if err := s.write(ctx, m); err != nil {
				s.out.close()
				return err
			}

		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.out.close()
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *session) write(ctx context.Context, m protocol.Message) error {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, s.conn, m)
}

func (s *session) close(err error) {
	s.out.close()

	status, reason := websocket.StatusNormalClosure, "bye"
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case websocket.CloseStatus(err) != -1:
		s.log.Info("ws.session_ended", zap.Int("status", int(websocket.CloseStatus(err))))
		_ = s.conn.CloseNow()
		return
	case errors.Is(err, room.ErrClosed):
		status, reason = websocket.StatusGoingAway, "room closed"
	case errors.Is(err, errSlowConsumer):
		status, reason = websocket.StatusPolicyViolation, "too slow"
	default:
		status, reason = websocket.StatusInternalError, "session error"
	}

	s.log.Info("ws.session_ended", zap.NamedError("cause", err))
	_ = s.conn.Close(status, reason)
}
