package level

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfThresholds(t *testing.T) {
	cases := map[int64]Name{
		-50:   Bronze,
		0:     Bronze,
		499:   Bronze,
		500:   Silver,
		1999:  Silver,
		2000:  Gold,
		4999:  Gold,
		5000:  Platinum,
		9999:  Platinum,
		10000: Diamond,
		24999: Diamond,
		25000: VIPElite,
		1e9:   VIPElite,
	}
	for xp, want := range cases {
		require.Equal(t, want, Of(xp).Name, "xp=%d", xp)
	}
}

func TestOfIsMonotonic(t *testing.T) {
	prev := Of(0).Rank
	for xp := int64(0); xp <= 30000; xp += 7 {
		rank := Of(xp).Rank
		require.GreaterOrEqual(t, rank, prev, "xp=%d", xp)
		prev = rank
	}
}

func TestProgress(t *testing.T) {
	bronze, _ := ByName(Bronze)
	require.Equal(t, float64(0), Progress(0, bronze))
	require.Equal(t, float64(50), Progress(250, bronze))
	require.Equal(t, float64(0), Progress(-10, bronze))

	silver, _ := ByName(Silver)
	require.Equal(t, float64(100), Progress(5000, silver))
	require.InDelta(t, 0.67, Progress(510, silver), 0.001)

	vip, _ := ByName(VIPElite)
	require.Equal(t, float64(100), Progress(25000, vip))
	require.Equal(t, float64(100), Progress(1_000_000, vip))
}

func TestNextThreshold(t *testing.T) {
	next, ok := NextThreshold(Of(10))
	require.True(t, ok)
	require.Equal(t, int64(500), next)

	_, ok = NextThreshold(Of(30000))
	require.False(t, ok)
}

func TestCompare(t *testing.T) {
	c := Compare(490, 510)
	require.True(t, c.Up())
	require.Equal(t, Silver, c.To.Name)
	require.Equal(t, int64(25), c.To.LevelUpBonus)

	c = Compare(600, 400)
	require.True(t, c.Down())
	require.False(t, Compare(10, 20).Up())
}

func TestSnapshotOf(t *testing.T) {
	s := SnapshotOf(510)
	require.Equal(t, Silver, s.Tier.Name)
	require.NotNil(t, s.NextThreshold)
	require.Equal(t, int64(2000), *s.NextThreshold)

	s = SnapshotOf(26000)
	require.Nil(t, s.NextThreshold)
	require.Equal(t, float64(100), s.Progress)
}

func TestByRank(t *testing.T) {
	tier, ok := ByRank(3)
	require.True(t, ok)
	require.Equal(t, Gold, tier.Name)
	_, ok = ByRank(0)
	require.False(t, ok)
	_, ok = ByRank(7)
	require.False(t, ok)
}
