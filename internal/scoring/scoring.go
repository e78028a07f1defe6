// Package scoring turns evaluator output into points and orders the
// leaderboard.
package scoring

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

// Tier awards Percent extra points when the answer arrived before
// Fraction of the time limit elapsed.
type Tier struct {
	Fraction float64
	Percent  int
}

// DefaultTiers: +50% under half the limit, +25% under three quarters.
func DefaultTiers() []Tier {
	return []Tier{
		{Fraction: 0.5, Percent: 50},
		{Fraction: 0.75, Percent: 25},
	}
}

type Scorer struct {
	tiers []Tier
}

// New sorts tiers by fraction so the fastest matching tier wins.
func New(tiers []Tier) *Scorer {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	tiers = slices.Clone(tiers)
	slices.SortFunc(tiers, func(a, b Tier) int { return cmp.Compare(a.Fraction, b.Fraction) })
	return &Scorer{tiers: tiers}
}

// Points for one response. Incorrect answers score zero; the bonus only
// applies when speedBonus is on and ttr falls strictly under a tier.
func (s *Scorer) Points(base int, correct, speedBonus bool, ttr, limit time.Duration) int {
	if !correct || base <= 0 {
		return 0
	}
	if !speedBonus || limit <= 0 {
		return base
	}
	for _, t := range s.tiers {
		if float64(ttr) < t.Fraction*float64(limit) {
			return base + base*t.Percent/100
		}
	}
	return base
}

// Apply folds a recorded response into sc. Timed-out responses count as a
// round played but leave UpdatedAt alone so they never affect tie-breaks.
func Apply(sc *motionquiz.Score, r motionquiz.Response) {
	sc.RoundsPlayed++
	if r.IsCorrect {
		sc.Correct++
	}
	sc.Points += r.Points
	sc.Accuracy = Accuracy(sc.Correct, sc.RoundsPlayed)
	if !r.TimedOut {
		sc.UpdatedAt = r.CreatedAt
	}
}

// Accuracy is the percentage of played rounds answered correctly.
func Accuracy(correct, played int) float64 {
	if played == 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(played)*10000) / 100
}

// Compare orders scores by points desc, then earliest update, then
// acceptance order, then user id.
func Compare(a, b motionquiz.Score) int {
	if c := cmp.Compare(b.Points, a.Points); c != 0 {
		return c
	}
	if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

// Rank sorts scores in place and assigns contiguous ranks from 1.
func Rank(scores []motionquiz.Score) []motionquiz.Score {
	slices.SortStableFunc(scores, Compare)
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}
