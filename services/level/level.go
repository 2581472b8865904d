// Package level maps cumulative XP to a level tier. Everything here is pure.
package level

import "math"

type Name string

const (
	Bronze   Name = "bronze"
	Silver   Name = "silver"
	Gold     Name = "gold"
	Platinum Name = "platinum"
	Diamond  Name = "diamond"
	VIPElite Name = "vip_elite"
)

const unbounded int64 = -1

type Tier struct {
	Name Name  `json:"name"`
	Rank int   `json:"rank"`
	Min  int64 `json:"min"`
	// Max is inclusive; -1 means unbounded.
	Max int64 `json:"max"`
	// LevelUpBonus is the credits bonus granted when a user reaches this tier.
	LevelUpBonus int64 `json:"level_up_bonus"`
}

func (t Tier) Unbounded() bool {
	return t.Max == unbounded
}

var tiers = []Tier{
	{Name: Bronze, Rank: 1, Min: 0, Max: 499, LevelUpBonus: 0},
	{Name: Silver, Rank: 2, Min: 500, Max: 1999, LevelUpBonus: 25},
	{Name: Gold, Rank: 3, Min: 2000, Max: 4999, LevelUpBonus: 50},
	{Name: Platinum, Rank: 4, Min: 5000, Max: 9999, LevelUpBonus: 100},
	{Name: Diamond, Rank: 5, Min: 10000, Max: 24999, LevelUpBonus: 250},
	{Name: VIPElite, Rank: 6, Min: 25000, Max: unbounded, LevelUpBonus: 500},
}

// Tiers returns a copy of the threshold table ordered by rank.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// Of returns the tier for xp. Negative balances map to bronze.
func Of(xp int64) Tier {
	for i := len(tiers) - 1; i >= 0; i-- {
		if xp >= tiers[i].Min {
			return tiers[i]
		}
	}
	return tiers[0]
}

// ByName looks a tier up by its name.
func ByName(name Name) (Tier, bool) {
	for _, t := range tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// ByRank looks a tier up by its 1-based rank.
func ByRank(rank int) (Tier, bool) {
	if rank < 1 || rank > len(tiers) {
		return Tier{}, false
	}
	return tiers[rank-1], true
}

// Progress is the percentage through t's range, clamped to [0,100] and rounded
// to two decimals. The unbounded tier always reports 100.
func Progress(xp int64, t Tier) float64 {
	if t.Unbounded() {
		return 100
	}
	span := float64(t.Max - t.Min + 1)
	p := float64(xp-t.Min) / span * 100
	p = math.Max(0, math.Min(100, p))
	return math.Round(p*100) / 100
}

// NextThreshold returns the minimum XP of the tier after t, or false at the top tier.
func NextThreshold(t Tier) (int64, bool) {
	next, ok := ByRank(t.Rank + 1)
	if !ok {
		return 0, false
	}
	return next.Min, true
}

// Change describes a tier transition caused by one XP mutation.
type Change struct {
	From Tier `json:"from"`
	To   Tier `json:"to"`
}

func (c Change) Up() bool   { return c.To.Rank > c.From.Rank }
func (c Change) Down() bool { return c.To.Rank < c.From.Rank }

// Compare computes the transition between two XP balances.
func Compare(before, after int64) Change {
	return Change{From: Of(before), To: Of(after)}
}

// Snapshot is the cached level state stored next to an XP balance.
type Snapshot struct {
	Tier          Tier    `json:"tier"`
	Progress      float64 `json:"progress"`
	NextThreshold *int64  `json:"next_threshold"`
}

func SnapshotOf(xp int64) Snapshot {
	t := Of(xp)
	s := Snapshot{Tier: t, Progress: Progress(xp, t)}
	if next, ok := NextThreshold(t); ok {
		s.NextThreshold = &next
	}
	return s
}
