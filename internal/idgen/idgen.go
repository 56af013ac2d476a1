// Package idgen mints the random tokens used for players, proposals and rooms.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// PlayerID returns "P_" followed by 6 hex characters.
func PlayerID() string { return "P_" + randomHex(3) }

// ProposalID returns "p_" followed by 8 hex characters.
func ProposalID() string { return "p_" + randomHex(4) }

// RoomCode returns a 6 character code from [A-Z0-9].
func RoomCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
