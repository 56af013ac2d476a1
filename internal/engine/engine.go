package engine

import (
	"errors"
	"slices"
)

var ErrLocked = errors.New("room is locked")
var ErrNotOwner = errors.New("not the lock owner")
var ErrUnknownType = errors.New("unknown command type")
var ErrNotMember = errors.New("player is not a member")
var ErrAlreadyMember = errors.New("player is already a member")
var ErrStaleProposal = errors.New("proposal is no longer pending")

type PlayerID string

// ServerActor is the synthetic actor for lock releases the room performs itself.
const ServerActor PlayerID = "SERVER"

type Phase string

const (
	PhasePlayer Phase = "PLAYER"
	PhaseEnemy  Phase = "ENEMY"
)

const (
	ReasonPendingConfirm    = "PENDING_CONFIRM"
	ReasonOwnerDisconnected = "OWNER_DISCONNECTED"
	ReasonProposalTimeout   = "PROPOSAL_TIMEOUT"
)

type Lock struct {
	Active     bool
	Owner      PlayerID
	ProposalID string
	Reason     string
	Prompt     string
}

type State struct {
	Code    string
	Version int
	Phase   Phase
	Round   int
	Players []PlayerID          // join order
	Ready   map[PlayerID]bool   // entry per member
	Pending map[PlayerID]string // "" means no outstanding proposal
	Lock    Lock
}

type CommandType string

const (
	CmdJoin    CommandType = "Join"
	CmdLeave   CommandType = "Leave"
	CmdExpire  CommandType = "Expire"
	CmdPropose CommandType = "PROPOSE"
	CmdCommit  CommandType = "COMMIT"
	CmdCancel  CommandType = "CANCEL"
	CmdReady   CommandType = "READY"
	CmdUnknown CommandType = "Unknown"
)

/*
	CmdPropose -> EvtPending -> EvtStateChanged
	CmdCommit  -> EvtCommitted -> EvtStateChanged
	CmdCancel  -> EvtCanceled -> EvtStateChanged
	CmdReady   -> EvtStateChanged [-> EvtEnemyPhase -> EvtStateChanged]
	CmdJoin    -> EvtPlayerJoined -> EvtStateChanged
	CmdLeave   -> EvtPlayerLeft [-> EvtCanceled(SERVER)] -> EvtStateChanged
	CmdExpire  -> EvtCanceled(SERVER) -> EvtStateChanged
*/

type Command struct {
	Type       CommandType
	Player     PlayerID
	ProposalID string // minted by the caller for CmdPropose, matched for CmdExpire
	Prompt     string
	Ready      bool
}

type EventType string

const (
	EvtPlayerJoined EventType = "PlayerJoined"
	EvtPlayerLeft   EventType = "PlayerLeft"
	EvtPending      EventType = "Pending"
	EvtCommitted    EventType = "Committed"
	EvtCanceled     EventType = "Canceled"
	EvtEnemyPhase   EventType = "EnemyPhase"
	EvtStateChanged EventType = "StateChanged"
)

type Event struct {
	Type       EventType
	Actor      PlayerID
	ProposalID string
	Prompt     string
	Reason     string
	Version    int
	// State is a private copy of the room at the moment the event was produced.
	// Only set for EvtStateChanged.
	State *State
}

// Proposal is what a commit hands to the effect hook.
type Proposal struct {
	ID     string
	Owner  PlayerID
	Prompt string
}

// EffectFunc applies a committed proposal's domain effect to the state being
// built. It runs before the commit's version bump is published.
type EffectFunc func(s *State, p Proposal)

// Machine applies commands to room state. The zero value performs no commit effect.
type Machine struct {
	Effect EffectFunc
}

// Apply runs cmd against s with the zero Machine.
func Apply(s State, cmd Command) ([]Event, State, error) {
	return Machine{}.Apply(s, cmd)
}

func (m Machine) Apply(s State, cmd Command) ([]Event, State, error) {
	if gated(cmd.Type) {
		if !s.HasPlayer(cmd.Player) {
			return nil, s, ErrNotMember
		}
		if s.Lock.Active && !ownerBypass(s, cmd) {
			return nil, s, ErrLocked
		}
	}

	newState := s.Clone()

	switch cmd.Type {
	case CmdJoin:
		if s.HasPlayer(cmd.Player) {
			return nil, s, ErrAlreadyMember
		}
		newState.Players = append(newState.Players, cmd.Player)
		newState.Ready[cmd.Player] = false
		newState.Pending[cmd.Player] = ""

		events := []Event{
			{Type: EvtPlayerJoined, Actor: cmd.Player, Version: newState.Version},
			stateChanged(newState),
		}
		return events, newState, nil

	case CmdLeave:
		if !s.HasPlayer(cmd.Player) {
			return nil, s, ErrNotMember
		}
		newState.Players = slices.DeleteFunc(newState.Players, func(id PlayerID) bool { return id == cmd.Player })
		delete(newState.Ready, cmd.Player)
		delete(newState.Pending, cmd.Player)

		events := []Event{{Type: EvtPlayerLeft, Actor: cmd.Player, Version: newState.Version}}
		if s.Lock.Active && s.Lock.Owner == cmd.Player {
			// Disconnect-recovery: a departed owner must never keep the room locked.
			newState.Lock = Lock{}
			newState.Version++
			events = append(events, Event{
				Type:       EvtCanceled,
				Actor:      ServerActor,
				ProposalID: s.Lock.ProposalID,
				Reason:     ReasonOwnerDisconnected,
				Version:    newState.Version,
			})
		}
		events = append(events, stateChanged(newState))
		return events, newState, nil

	case CmdExpire:
		if !s.Lock.Active || s.Lock.ProposalID != cmd.ProposalID {
			return nil, s, ErrStaleProposal
		}
		newState.release()
		events := []Event{
			{
				Type:       EvtCanceled,
				Actor:      ServerActor,
				ProposalID: s.Lock.ProposalID,
				Reason:     ReasonProposalTimeout,
				Version:    newState.Version,
			},
			stateChanged(newState),
		}
		return events, newState, nil

	case CmdPropose:
		newState.Lock = Lock{
			Active:     true,
			Owner:      cmd.Player,
			ProposalID: cmd.ProposalID,
			Reason:     ReasonPendingConfirm,
			Prompt:     cmd.Prompt,
		}
		newState.Pending[cmd.Player] = cmd.ProposalID

		// Any proposal invalidates prior ready state.
		for id := range newState.Ready {
			newState.Ready[id] = false
		}
		newState.Version++

		events := []Event{
			{
				Type:       EvtPending,
				Actor:      cmd.Player,
				ProposalID: cmd.ProposalID,
				Prompt:     cmd.Prompt,
				Version:    newState.Version,
			},
			stateChanged(newState),
		}
		return events, newState, nil

	case CmdCommit:
		if !s.Lock.Active || s.Lock.Owner != cmd.Player {
			return nil, s, ErrNotOwner
		}
		if m.Effect != nil {
			m.Effect(&newState, Proposal{ID: s.Lock.ProposalID, Owner: s.Lock.Owner, Prompt: s.Lock.Prompt})
		}
		newState.release()

		events := []Event{
			{Type: EvtCommitted, Actor: cmd.Player, ProposalID: s.Lock.ProposalID, Version: newState.Version},
			stateChanged(newState),
		}
		return events, newState, nil

	case CmdCancel:
		if !s.Lock.Active || s.Lock.Owner != cmd.Player {
			return nil, s, ErrNotOwner
		}
		newState.release()

		events := []Event{
			{Type: EvtCanceled, Actor: cmd.Player, ProposalID: s.Lock.ProposalID, Version: newState.Version},
			stateChanged(newState),
		}
		return events, newState, nil

	case CmdReady:
		newState.Ready[cmd.Player] = cmd.Ready
		newState.Version++
		events := []Event{stateChanged(newState)}

		if !newState.AllReady() {
			return events, newState, nil
		}

		// Round-advance: enemy phase, then straight back to the next player round.
		newState.Phase = PhaseEnemy
		newState.Version++
		events = append(events, Event{Type: EvtEnemyPhase, Version: newState.Version})

		newState.Round++
		newState.Phase = PhasePlayer
		for id := range newState.Ready {
			newState.Ready[id] = false
		}
		newState.Version++
		events = append(events, stateChanged(newState))
		return events, newState, nil

	default:
		return nil, s, ErrUnknownType
	}
}

// release clears the lock and the owner's pending entry and bumps the version.
func (s *State) release() {
	if s.Lock.Owner != "" {
		if _, ok := s.Pending[s.Lock.Owner]; ok {
			s.Pending[s.Lock.Owner] = ""
		}
	}
	s.Lock = Lock{}
	s.Version++
}

// gated reports whether cmd comes from a client and must pass the lock gate.
func gated(t CommandType) bool {
	switch t {
	case CmdJoin, CmdLeave, CmdExpire:
		return false
	default:
		return true
	}
}

func ownerBypass(s State, cmd Command) bool {
	return (cmd.Type == CmdCommit || cmd.Type == CmdCancel) && cmd.Player == s.Lock.Owner
}

func stateChanged(s State) Event {
	snap := s.Clone()
	return Event{Type: EvtStateChanged, Version: s.Version, State: &snap}
}
