package idgen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormats(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^P_[0-9a-f]{6}$`), PlayerID())
	assert.Regexp(t, regexp.MustCompile(`^p_[0-9a-f]{8}$`), ProposalID())

	code, err := RoomCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), code)
}

func TestProposalIDs_Distinct(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := ProposalID()
		require.False(t, seen[id], "duplicate proposal id %s", id)
		seen[id] = true
	}
}
