// Package protocol defines the JSON messages exchanged with room clients.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/DoyleJ11/coop-room-backend/internal/engine"
)

type Type string

const (
	TypeWelcome       Type = "WELCOME"
	TypeInfo          Type = "INFO"
	TypePending       Type = "PENDING"
	TypeCommitted     Type = "COMMITTED"
	TypeCanceled      Type = "CANCELED"
	TypeEnemyPhase    Type = "ENEMY_PHASE"
	TypeReject        Type = "REJECT"
	TypeStateSnapshot Type = "STATE_SNAPSHOT"
)

const (
	RejectLocked      = "LOCKED"
	RejectNotOwner    = "NOT_OWNER"
	RejectUnknownType = "UNKNOWN_TYPE"
)

const EnemyPhaseMsg = "Enemy acts (mock)"

// ClientMessage is the inbound envelope. Seq is echoed back verbatim.
type ClientMessage struct {
	Type   string          `json:"type"`
	Seq    json.RawMessage `json:"seq,omitempty"`
	Prompt *string         `json:"prompt,omitempty"`
	Ready  *bool           `json:"ready,omitempty"`
}

// Message is any outbound server message.
type Message interface {
	Kind() Type
}

type Welcome struct {
	Type     Type   `json:"type"`
	PlayerID string `json:"playerId"`
	RoomCode string `json:"roomCode"`
}

type Info struct {
	Type Type   `json:"type"`
	Msg  string `json:"msg"`
}

type Pending struct {
	Type       Type            `json:"type"`
	Seq        json.RawMessage `json:"seq"`
	Owner      string          `json:"owner"`
	ProposalID string          `json:"proposalId"`
	Prompt     string          `json:"prompt"`
	Version    int             `json:"version"`
}

type Committed struct {
	Type    Type            `json:"type"`
	Seq     json.RawMessage `json:"seq"`
	By      string          `json:"by"`
	Version int             `json:"version"`
}

type Canceled struct {
	Type    Type            `json:"type"`
	Seq     json.RawMessage `json:"seq,omitempty"`
	By      string          `json:"by"`
	Reason  string          `json:"reason,omitempty"`
	Version int             `json:"version"`
}

type EnemyPhase struct {
	Type    Type   `json:"type"`
	Msg     string `json:"msg"`
	Version int    `json:"version"`
}

type Reject struct {
	Type    Type            `json:"type"`
	Seq     json.RawMessage `json:"seq"`
	Reason  string          `json:"reason"`
	Version int             `json:"version"`
}

func (Welcome) Kind() Type       { return TypeWelcome }
func (Info) Kind() Type          { return TypeInfo }
func (Pending) Kind() Type       { return TypePending }
func (Committed) Kind() Type     { return TypeCommitted }
func (Canceled) Kind() Type      { return TypeCanceled }
func (EnemyPhase) Kind() Type    { return TypeEnemyPhase }
func (Reject) Kind() Type        { return TypeReject }
func (StateSnapshot) Kind() Type { return TypeStateSnapshot }

func NewWelcome(id engine.PlayerID, code string) Welcome {
	return Welcome{Type: TypeWelcome, PlayerID: string(id), RoomCode: code}
}

func NewInfo(msg string) Info { return Info{Type: TypeInfo, Msg: msg} }

func NewReject(seq json.RawMessage, reason string, version int) Reject {
	return Reject{Type: TypeReject, Seq: seq, Reason: reason, Version: version}
}

// RejectReason maps an engine error onto the client-visible reject reason.
// ok is false for errors that are not reported to clients.
func RejectReason(err error) (reason string, ok bool) {
	switch {
	case errors.Is(err, engine.ErrLocked):
		return RejectLocked, true
	case errors.Is(err, engine.ErrNotOwner):
		return RejectNotOwner, true
	case errors.Is(err, engine.ErrUnknownType):
		return RejectUnknownType, true
	default:
		return "", false
	}
}

// EventMessage renders a room-wide engine event. Snapshot events are
// personalized per recipient and are not handled here.
func EventMessage(ev engine.Event, seq json.RawMessage) (Message, bool) {
	switch ev.Type {
	case engine.EvtPlayerJoined:
		return NewInfo(string(ev.Actor) + " joined"), true
	case engine.EvtPlayerLeft:
		return NewInfo(string(ev.Actor) + " left"), true
	case engine.EvtPending:
		return Pending{
			Type:       TypePending,
			Seq:        seqOrNull(seq),
			Owner:      string(ev.Actor),
			ProposalID: ev.ProposalID,
			Prompt:     ev.Prompt,
			Version:    ev.Version,
		}, true
	case engine.EvtCommitted:
		return Committed{Type: TypeCommitted, Seq: seqOrNull(seq), By: string(ev.Actor), Version: ev.Version}, true
	case engine.EvtCanceled:
		c := Canceled{Type: TypeCanceled, By: string(ev.Actor), Reason: ev.Reason, Version: ev.Version}
		if ev.Actor != engine.ServerActor {
			c.Seq = seqOrNull(seq)
		}
		return c, true
	case engine.EvtEnemyPhase:
		return EnemyPhase{Type: TypeEnemyPhase, Msg: EnemyPhaseMsg, Version: ev.Version}, true
	default:
		return nil, false
	}
}

var null = json.RawMessage("null")

func seqOrNull(seq json.RawMessage) json.RawMessage {
	if len(seq) == 0 {
		return null
	}
	return seq
}
