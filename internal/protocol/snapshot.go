package protocol

import "github.com/DoyleJ11/coop-room-backend/internal/engine"

type StateSnapshot struct {
	Type   Type          `json:"type"`
	GameID string        `json:"gameId"`
	State  SnapshotState `json:"state"`
}

type SnapshotState struct {
	RoomCode string          `json:"roomCode"`
	Version  int             `json:"version"`
	Phase    engine.Phase    `json:"phase"`
	Round    int             `json:"round"`
	Players  []PlayerView    `json:"players"`
	Ready    map[string]bool `json:"ready"`
	Lock     LockView        `json:"lock"`
	You      YouView         `json:"you"`
}

type PlayerView struct {
	ID    string `json:"id"`
	Ready bool   `json:"ready"`
}

// LockView uses nil pointers so an idle lock renders owner/proposalId/reason as null.
type LockView struct {
	Active     bool    `json:"active"`
	Owner      *string `json:"owner"`
	ProposalID *string `json:"proposalId"`
	Reason     *string `json:"reason"`
}

type YouView struct {
	ID            string  `json:"id"`
	PendingChoice *string `json:"pendingChoice"`
}

// NewSnapshot builds the view of s for one recipient. Only the recipient's own
// pending choice is included.
func NewSnapshot(s engine.State, to engine.PlayerID) StateSnapshot {
	players := make([]PlayerView, 0, len(s.Players))
	for _, id := range s.Players {
		players = append(players, PlayerView{ID: string(id), Ready: s.Ready[id]})
	}
	ready := make(map[string]bool, len(s.Ready))
	for id, r := range s.Ready {
		ready[string(id)] = r
	}

	return StateSnapshot{
		Type:   TypeStateSnapshot,
		GameID: s.Code,
		State: SnapshotState{
			RoomCode: s.Code,
			Version:  s.Version,
			Phase:    s.Phase,
			Round:    s.Round,
			Players:  players,
			Ready:    ready,
			Lock: LockView{
				Active:     s.Lock.Active,
				Owner:      optional(string(s.Lock.Owner)),
				ProposalID: optional(s.Lock.ProposalID),
				Reason:     optional(s.Lock.Reason),
			},
			You: YouView{
				ID:            string(to),
				PendingChoice: optional(s.Pending[to]),
			},
		},
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
