package pathrank

import (
	"math"
	"sort"
	"time"
)

// DecayFunc maps the age of an edge's last activity onto [0, 1].
type DecayFunc func(age time.Duration) float64

// HalfLifeDecay halves the recency boost every halfLife.
func HalfLifeDecay(halfLife time.Duration) DecayFunc {
	return func(age time.Duration) float64 {
		if halfLife <= 0 {
			return 0
		}
		if age < 0 {
			age = 0
		}
		return math.Exp2(-float64(age) / float64(halfLife))
	}
}

// Weights are the tunable parameters of the score function.
type Weights struct {
	// HopPenalty multiplies the score once per hop, in (0, 1].
	HopPenalty float64
	// RecencyWeight is the maximum relative boost a freshly active edge earns.
	RecencyWeight float64
	// RecencyHalfLife drives the default decay when Decay is nil.
	RecencyHalfLife time.Duration
	// Decay overrides the half-life decay.
	Decay DecayFunc
}

// DefaultWeights returns the production weight configuration.
func DefaultWeights() Weights {
	return Weights{
		HopPenalty:      0.85,
		RecencyWeight:   0.25,
		RecencyHalfLife: 30 * 24 * time.Hour,
	}
}

// Ranker scores paths and orders them deterministically.
type Ranker struct {
	weights Weights
	decay   DecayFunc
}

// NewRanker builds a Ranker. Out-of-range parameters fall back to neutral values.
func NewRanker(w Weights) *Ranker {
	if !(w.HopPenalty > 0) || w.HopPenalty > 1 {
		w.HopPenalty = 1
	}
	if w.RecencyWeight < 0 {
		w.RecencyWeight = 0
	}
	decay := w.Decay
	if decay == nil {
		decay = HalfLifeDecay(w.RecencyHalfLife)
	}
	return &Ranker{weights: w, decay: decay}
}

// Weights returns the effective weights.
func (r *Ranker) Weights() Weights {
	return r.weights
}

// EdgeFactor is the multiplicative contribution of one hop to a path score.
func (r *Ranker) EdgeFactor(e Edge, now time.Time) float64 {
	return e.Strength * r.weights.HopPenalty * (1 + r.weights.RecencyWeight*r.recency(e, now))
}

func (r *Ranker) recency(e Edge, now time.Time) float64 {
	if e.Recency.IsZero() || r.weights.RecencyWeight == 0 {
		return 0
	}
	d := r.decay(now.Sub(e.Recency))
	switch {
	case d < 0 || math.IsNaN(d):
		return 0
	case d > 1:
		return 1
	default:
		return d
	}
}

// maxEdgeFactor bounds EdgeFactor for any edge no stronger than maxStrength.
func (r *Ranker) maxEdgeFactor(maxStrength float64) float64 {
	return maxStrength * r.weights.HopPenalty * (1 + r.weights.RecencyWeight)
}

// Score returns p with Hops, Strength and Score derived from its edges.
func (r *Ranker) Score(p Path, now time.Time) Path {
	p.Hops = len(p.Nodes) - 1
	strength, score := 1.0, 1.0
	for _, e := range p.Edges {
		strength *= e.Strength
		score *= r.EdgeFactor(e, now)
	}
	p.Strength = strength
	p.Score = score
	return p
}

// Rank scores the candidates and returns them in rank order. Paths repeating a node
// sequence are dropped so the order is strict.
func (r *Ranker) Rank(candidates []Path, now time.Time) []Path {
	seen := make(map[string]struct{}, len(candidates))
	ranked := make([]Path, 0, len(candidates))
	for _, c := range candidates {
		key := c.sequenceKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ranked = append(ranked, r.Score(c, now))
	}
	sort.Slice(ranked, func(i, j int) bool {
		return RankBefore(ranked[i], ranked[j])
	})
	return ranked
}

// RankBefore is the total order over scored paths: score desc, strength desc, hops asc,
// then node keys lexicographically.
func RankBefore(a, b Path) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Strength != b.Strength {
		return a.Strength > b.Strength
	}
	if a.Hops != b.Hops {
		return a.Hops < b.Hops
	}
	return compareSequences(a.Nodes, b.Nodes) < 0
}

func compareSequences(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
