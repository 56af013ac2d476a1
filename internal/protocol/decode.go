package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/coop-room-backend/internal/engine"
)

const DefaultPrompt = "Confirm this action?"

// Decode parses one inbound frame.
func Decode(data []byte) (ClientMessage, error) {
	var cm ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	return cm, nil
}

// ToCommand maps a client message onto an engine command. Anything that is not
// a known client operation becomes CmdUnknown so it still passes the lock gate.
func ToCommand(m ClientMessage, maxPromptRunes int) engine.Command {
	switch m.Type {
	case string(engine.CmdPropose):
		return engine.Command{Type: engine.CmdPropose, Prompt: NormalizePrompt(m.Prompt, maxPromptRunes)}
	case string(engine.CmdCommit):
		return engine.Command{Type: engine.CmdCommit}
	case string(engine.CmdCancel):
		return engine.Command{Type: engine.CmdCancel}
	case string(engine.CmdReady):
		ready := true
		if m.Ready != nil {
			ready = *m.Ready
		}
		return engine.Command{Type: engine.CmdReady, Ready: ready}
	default:
		return engine.Command{Type: engine.CmdUnknown}
	}
}

// NormalizePrompt applies the default prompt, NFC-normalizes, trims and caps the
// text at max runes (max <= 0 disables the cap).
func NormalizePrompt(p *string, max int) string {
	if p == nil {
		return DefaultPrompt
	}
	s := strings.TrimSpace(norm.NFC.String(*p))
	if s == "" {
		return DefaultPrompt
	}
	if max > 0 {
		if r := []rune(s); len(r) > max {
			s = string(r[:max])
		}
	}
	return s
}
