package engine

import (
	"fmt"
	"maps"
	"slices"
)

func NewState(code string) State {
	return State{
		Code:    code,
		Phase:   PhasePlayer,
		Round:   1,
		Players: []PlayerID{},
		Ready:   map[PlayerID]bool{},
		Pending: map[PlayerID]string{},
	}
}

// Clone returns a deep copy so snapshots never share maps with the live state.
func (s State) Clone() State {
	c := s
	c.Players = slices.Clone(s.Players)
	c.Ready = maps.Clone(s.Ready)
	c.Pending = maps.Clone(s.Pending)
	if c.Players == nil {
		c.Players = []PlayerID{}
	}
	if c.Ready == nil {
		c.Ready = map[PlayerID]bool{}
	}
	if c.Pending == nil {
		c.Pending = map[PlayerID]string{}
	}
	return c
}

func (s State) HasPlayer(id PlayerID) bool {
	return slices.Contains(s.Players, id)
}

// AllReady is false for an empty room.
func (s State) AllReady() bool {
	if len(s.Ready) == 0 {
		return false
	}
	for _, ready := range s.Ready {
		if !ready {
			return false
		}
	}
	return true
}

// CheckLock verifies that the lock is held iff exactly one pending entry is set,
// and that the entry belongs to the lock owner.
func (s State) CheckLock() error {
	var holders []PlayerID
	for id, proposalID := range s.Pending {
		if proposalID != "" {
			holders = append(holders, id)
		}
	}
	switch {
	case !s.Lock.Active && len(holders) == 0:
		return nil
	case s.Lock.Active && len(holders) == 1 && holders[0] == s.Lock.Owner:
		if s.Pending[s.Lock.Owner] != s.Lock.ProposalID {
			return fmt.Errorf("owner %s pending %q, lock holds %q", s.Lock.Owner, s.Pending[s.Lock.Owner], s.Lock.ProposalID)
		}
		return nil
	default:
		return fmt.Errorf("lock active=%v owner=%q with pending holders %v", s.Lock.Active, s.Lock.Owner, holders)
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
