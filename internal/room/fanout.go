package room

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-room-backend/internal/audit"
	"github.com/DoyleJ11/coop-room-backend/internal/engine"
	"github.com/DoyleJ11/coop-room-backend/internal/protocol"
)

func (r *Room) handleClient(msg FromClient) {
	if _, ok := r.clients[msg.ClientID]; !ok {
		return
	}
	if _, ok := r.dead[msg.ClientID]; ok {
		return
	}

	cmd := msg.Cmd
	cmd.Player = msg.ClientID
	if cmd.Type == engine.CmdPropose {
		cmd.ProposalID = r.opts.NewProposalID()
	}

	err := r.apply(cmd, msg.Seq)
	if err == nil {
		r.opts.Metrics.Operation(string(cmd.Type), "ok")
		return
	}

	reason, ok := protocol.RejectReason(err)
	if !ok {
		r.log.Debug("room.ignored", zap.String("player", string(msg.ClientID)), zap.String("type", string(cmd.Type)), zap.Error(err))
		return
	}
	r.opts.Metrics.Operation(string(cmd.Type), reason)
	r.log.Debug("room.reject",
		zap.String("player", string(msg.ClientID)),
		zap.String("type", string(cmd.Type)),
		zap.String("reason", reason),
		zap.Int("version", r.state.Version),
	)
	r.deliver(msg.ClientID, protocol.NewReject(msg.Seq, reason, r.state.Version))
}

// apply runs cmd against the engine and, on success, publishes its events in
// order before returning. Rejected commands leave the room untouched.
func (r *Room) apply(cmd engine.Command, seq json.RawMessage) error {
	events, next, err := r.machine.Apply(r.state, cmd)
	if err != nil {
		return err
	}
	r.state = next

	for _, ev := range events {
		r.observe(ev)
		if ev.Type == engine.EvtStateChanged {
			r.broadcastSnapshots(*ev.State)
			continue
		}
		if m, ok := protocol.EventMessage(ev, seq); ok {
			r.broadcastAll(m)
		}
	}
	return nil
}

func (r *Room) observe(ev engine.Event) {
	switch ev.Type {
	case engine.EvtPending:
		r.armTimer(ev.ProposalID)
	case engine.EvtCommitted:
		r.stopTimer()
	case engine.EvtCanceled:
		r.stopTimer()
		if ev.Actor == engine.ServerActor {
			r.opts.Metrics.LockReleased(ev.Reason)
			r.log.Info("room.lock_released", zap.String("proposal", ev.ProposalID), zap.String("reason", ev.Reason), zap.Int("version", ev.Version))
		}
	case engine.EvtEnemyPhase:
	default:
		return
	}

	r.opts.Audit.Record(audit.Entry{
		RoomCode:   r.code,
		Version:    ev.Version,
		Kind:       string(ev.Type),
		Actor:      string(ev.Actor),
		ProposalID: ev.ProposalID,
		Reason:     ev.Reason,
		Prompt:     ev.Prompt,
		At:         time.Now().UTC(),
	})
}

// join order, live members only
func (r *Room) recipients() []engine.PlayerID {
	out := make([]engine.PlayerID, 0, len(r.state.Players))
	for _, id := range r.state.Players {
		if _, ok := r.clients[id]; !ok {
			continue
		}
		if _, ok := r.dead[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (r *Room) broadcastAll(m protocol.Message) {
	for _, id := range r.recipients() {
		r.deliver(id, m)
	}
}

// broadcastSnapshots sends each member its own view of s.
func (r *Room) broadcastSnapshots(s engine.State) {
	for _, id := range r.recipients() {
		r.deliver(id, protocol.NewSnapshot(s, id))
	}
}

func (r *Room) deliver(id engine.PlayerID, m protocol.Message) {
	out, ok := r.clients[id]
	if !ok {
		return
	}
	if _, ok := r.dead[id]; ok {
		return
	}
	if err := out.Send(m); err != nil {
		r.dead[id] = struct{}{}
		r.log.Warn("room.delivery_failed", zap.String("player", string(id)), zap.String("type", string(m.Kind())), zap.Error(err))
	}
}

// reap prunes members whose delivery failed. Pruning may release the lock and
// broadcast again, so it repeats until no member is marked dead.
func (r *Room) reap() {
	for len(r.dead) > 0 {
		ids := make([]engine.PlayerID, 0, len(r.dead))
		for id := range r.dead {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		for _, id := range ids {
			if _, ok := r.clients[id]; !ok {
				delete(r.dead, id)
				continue
			}
			r.opts.Metrics.Pruned()
			r.log.Info("room.pruned", zap.String("player", string(id)))
			r.remove(id)
		}
	}
}

// remove drops a member and applies the leave, which performs disconnect-recovery
// when the member held the lock.
func (r *Room) remove(id engine.PlayerID) {
	delete(r.clients, id)
	delete(r.dead, id)
	if err := r.apply(engine.Command{Type: engine.CmdLeave, Player: id}, nil); err != nil && !errors.Is(err, engine.ErrNotMember) {
		r.log.Error("room.leave_failed", zap.String("player", string(id)), zap.Error(err))
	}
}

func (r *Room) armTimer(proposalID string) {
	r.stopTimer()
	if r.opts.ProposalTimeout <= 0 {
		return
	}
	r.timer = time.AfterFunc(r.opts.ProposalTimeout, func() {
		// The engine ignores fires for a proposal that is no longer pending.
		select {
		case r.inbox <- expired{ProposalID: proposalID}:
		case <-r.done:
		}
	})
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	clear(r.clients)
	clear(r.dead)
	r.cancel()
	if r.opts.OnClose != nil {
		r.opts.OnClose(r)
	}
	r.log.Info("room.closed", zap.Int("version", r.state.Version))
}
