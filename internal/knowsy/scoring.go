package knowsy

import "slices"

const (
	EndSlotPoints    = 2
	MiddleSlotPoints = 1
	PerfectBonus     = 3
	MissPenalty      = -1
)

// Score compares a guess against the VIP's ranking. The first and last
// slots are worth more than the middle ones; a perfect ranking earns a bonus
// and a ranking with no correct slot costs a point.
func Score(selection, guess []ItemRef) int {
	n := min(len(selection), len(guess))
	score, hits := 0, 0
	for i := range n {
		if !selection[i].Equal(guess[i]) {
			continue
		}
		hits++
		if i == 0 || i == SelectionSize-1 {
			score += EndSlotPoints
		} else {
			score += MiddleSlotPoints
		}
	}
	switch {
	case hits == 0:
		return MissPenalty
	case hits == SelectionSize && len(selection) == SelectionSize:
		score += PerfectBonus
	}
	return score
}

// Credited is the part of a guess score added to the player's running total.
// Totals never go down.
func Credited(score int) int { return max(score, 0) }

// Rank orders players by score, highest first. Ties keep roster order.
func Rank(players []Player) []Standing {
	out := make([]Standing, len(players))
	for i, p := range players {
		out[i] = Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			IsHost:   p.IsHost,
			IsAI:     p.IsAI,
		}
	}
	slices.SortStableFunc(out, func(a, b Standing) int { return b.Score - a.Score })
	for i := range out {
		out[i].Rank = i + 1
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		}
	}
	return out
}

// Winner returns the top standing, if anyone scored at all.
func Winner(standings []Standing) (Standing, bool) {
	if len(standings) == 0 || standings[0].Score <= 0 {
		return Standing{}, false
	}
	return standings[0], true
}
