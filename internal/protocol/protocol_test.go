package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/coop-room-backend/internal/engine"
)

func ptr[T any](v T) *T { return &v }

func TestToCommand(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want engine.Command
	}{
		{"propose default prompt", `{"type":"PROPOSE","seq":1}`, engine.Command{Type: engine.CmdPropose, Prompt: DefaultPrompt}},
		{"propose with prompt", `{"type":"PROPOSE","seq":1,"prompt":" Play the fireball? "}`, engine.Command{Type: engine.CmdPropose, Prompt: "Play the fireball?"}},
		{"commit", `{"type":"COMMIT","seq":3}`, engine.Command{Type: engine.CmdCommit}},
		{"cancel", `{"type":"CANCEL"}`, engine.Command{Type: engine.CmdCancel}},
		{"ready defaults true", `{"type":"READY","seq":2}`, engine.Command{Type: engine.CmdReady, Ready: true}},
		{"ready false", `{"type":"READY","ready":false}`, engine.Command{Type: engine.CmdReady, Ready: false}},
		{"unknown", `{"type":"DANCE"}`, engine.Command{Type: engine.CmdUnknown}},
		{"internal names are not client operations", `{"type":"Leave"}`, engine.Command{Type: engine.CmdUnknown}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cm, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ToCommand(cm, 280))
		})
	}
}

func TestDecode_BadJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	require.Error(t, err)
}

func TestNormalizePrompt(t *testing.T) {
	assert.Equal(t, DefaultPrompt, NormalizePrompt(nil, 10))
	assert.Equal(t, DefaultPrompt, NormalizePrompt(ptr("   "), 10))
	assert.Equal(t, "h\u00e9llo", NormalizePrompt(ptr("he\u0301llo"), 0), "combining accent must compose")
	assert.Equal(t, "ab", NormalizePrompt(ptr("abcdef"), 2))
	assert.Equal(t, strings.Repeat("é", 3), NormalizePrompt(ptr(strings.Repeat("é", 5)), 3))
}

func TestNewSnapshot_Personalized(t *testing.T) {
	s := engine.NewState("R1")
	s.Players = []engine.PlayerID{"A", "B"}
	s.Ready = map[engine.PlayerID]bool{"A": false, "B": true}
	s.Pending = map[engine.PlayerID]string{"A": "p_1", "B": ""}
	s.Lock = engine.Lock{Active: true, Owner: "A", ProposalID: "p_1", Reason: engine.ReasonPendingConfirm}
	s.Version = 7

	forA := NewSnapshot(s, "A")
	forB := NewSnapshot(s, "B")

	require.NotNil(t, forA.State.You.PendingChoice)
	assert.Equal(t, "p_1", *forA.State.You.PendingChoice)
	assert.Nil(t, forB.State.You.PendingChoice, "B must not see A's pending choice")
	assert.Equal(t, []PlayerView{{ID: "A"}, {ID: "B", Ready: true}}, forA.State.Players)

	raw, err := json.Marshal(forB)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "STATE_SNAPSHOT", decoded["type"])
	assert.Equal(t, "R1", decoded["gameId"])
	state := decoded["state"].(map[string]any)
	assert.EqualValues(t, 7, state["version"])
	assert.Equal(t, "PLAYER", state["phase"])
	assert.Equal(t, map[string]any{"id": "B", "pendingChoice": nil}, state["you"])
}

func TestNewSnapshot_IdleLockIsNull(t *testing.T) {
	raw, err := json.Marshal(NewSnapshot(engine.NewState("R1"), "A"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"lock":{"active":false,"owner":null,"proposalId":null,"reason":null}`)
}

func TestEventMessage(t *testing.T) {
	seq := json.RawMessage(`3`)

	msg, ok := EventMessage(engine.Event{Type: engine.EvtCommitted, Actor: "P_A", Version: 2}, seq)
	require.True(t, ok)
	raw, _ := json.Marshal(msg)
	assert.JSONEq(t, `{"type":"COMMITTED","seq":3,"by":"P_A","version":2}`, string(raw))

	msg, ok = EventMessage(engine.Event{
		Type:    engine.EvtCanceled,
		Actor:   engine.ServerActor,
		Reason:  engine.ReasonOwnerDisconnected,
		Version: 4,
	}, seq)
	require.True(t, ok)
	raw, _ = json.Marshal(msg)
	assert.JSONEq(t, `{"type":"CANCELED","by":"SERVER","reason":"OWNER_DISCONNECTED","version":4}`, string(raw))

	msg, ok = EventMessage(engine.Event{Type: engine.EvtPending, Actor: "P_A", ProposalID: "p_x", Prompt: "ok?", Version: 1}, nil)
	require.True(t, ok)
	raw, _ = json.Marshal(msg)
	assert.JSONEq(t, `{"type":"PENDING","seq":null,"owner":"P_A","proposalId":"p_x","prompt":"ok?","version":1}`, string(raw))

	msg, ok = EventMessage(engine.Event{Type: engine.EvtEnemyPhase, Version: 5}, nil)
	require.True(t, ok)
	raw, _ = json.Marshal(msg)
	assert.JSONEq(t, `{"type":"ENEMY_PHASE","msg":"Enemy acts (mock)","version":5}`, string(raw))

	_, ok = EventMessage(engine.Event{Type: engine.EvtStateChanged}, nil)
	assert.False(t, ok)
}

func TestRejectReason(t *testing.T) {
	r, ok := RejectReason(engine.ErrLocked)
	assert.True(t, ok)
	assert.Equal(t, RejectLocked, r)

	r, _ = RejectReason(engine.ErrNotOwner)
	assert.Equal(t, RejectNotOwner, r)

	r, _ = RejectReason(engine.ErrUnknownType)
	assert.Equal(t, RejectUnknownType, r)

	_, ok = RejectReason(engine.ErrNotMember)
	assert.False(t, ok)
}
