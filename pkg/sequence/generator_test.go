package sequence

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomGeneratorFormat(t *testing.T) {
	g := NewRandomGenerator("GOAL-")
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := g.NextReferralCode(context.Background())
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(code, "GOAL-"))

		body := strings.TrimPrefix(code, "GOAL-")
		require.Len(t, body, CodeLength)
		for _, r := range body {
			require.True(t, strings.ContainsRune(Charset, r), code)
		}
		seen[code] = true
	}
	require.Greater(t, len(seen), 190)
}
