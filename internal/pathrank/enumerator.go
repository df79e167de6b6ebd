package pathrank

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"
)

const (
	// MaxHopsLimit is the largest hop budget a ranking may use.
	MaxHopsLimit = 6
	// MaxCandidatesLimit is the largest number of paths a ranking may retain.
	MaxCandidatesLimit = 50

	defaultMaxHops       = 4
	defaultMaxCandidates = 20
	defaultMaxExpansions = 250_000

	ctxCheckInterval = 256
	boundSlack       = 1 + 1e-12
)

// Limits bound the search horizon of one enumeration.
type Limits struct {
	MaxHops       int
	MaxCandidates int
	// MaxExpansions caps the number of nodes expanded; reaching it truncates the search.
	MaxExpansions int
}

// DefaultLimits returns the production search budget.
func DefaultLimits() Limits {
	return Limits{
		MaxHops:       defaultMaxHops,
		MaxCandidates: defaultMaxCandidates,
		MaxExpansions: defaultMaxExpansions,
	}
}

func (l Limits) normalized() Limits {
	if l.MaxHops <= 0 {
		l.MaxHops = defaultMaxHops
	}
	if l.MaxHops > MaxHopsLimit {
		l.MaxHops = MaxHopsLimit
	}
	if l.MaxCandidates <= 0 {
		l.MaxCandidates = defaultMaxCandidates
	}
	if l.MaxCandidates > MaxCandidatesLimit {
		l.MaxCandidates = MaxCandidatesLimit
	}
	if l.MaxExpansions <= 0 {
		l.MaxExpansions = defaultMaxExpansions
	}
	return l
}

// Enumeration is the ranked outcome of one search.
type Enumeration struct {
	Paths      []Path
	Expansions int
	Truncated  bool
}

// Enumerator finds the best simple paths between two nodes of a Snapshot.
type Enumerator struct {
	ranker *Ranker
	limits Limits
}

// NewEnumerator returns an Enumerator scoring with r inside limits l.
func NewEnumerator(r *Ranker, l Limits) *Enumerator {
	return &Enumerator{ranker: r, limits: l.normalized()}
}

// Limits returns the effective search limits.
func (e *Enumerator) Limits() Limits {
	return e.limits
}

// Enumerate runs a depth-first branch-and-bound search from source to target and returns
// at most MaxCandidates paths in rank order. Scores use the snapshot time as "now" so the
// same snapshot always yields the same ranking.
func (e *Enumerator) Enumerate(ctx context.Context, snap *Snapshot, source, target string) (Enumeration, error) {
	src, ok := snap.index[source]
	if !ok {
		return Enumeration{}, fmt.Errorf("%w: %s", ErrNodeNotFound, source)
	}
	tgt, ok := snap.index[target]
	if !ok {
		return Enumeration{}, fmt.Errorf("%w: %s", ErrNodeNotFound, target)
	}
	if src == tgt {
		return Enumeration{}, fmt.Errorf("%w: source and target are the same user", ErrInvalidRequest)
	}

	layers := snap.reachLayers(tgt, e.limits.MaxHops)
	if !layers[e.limits.MaxHops].Contains(uint32(src)) {
		return Enumeration{}, fmt.Errorf("%w: %s -> %s within %d hops", ErrNoPathFound, source, target, e.limits.MaxHops)
	}

	s := &search{
		ctx:        ctx,
		snap:       snap,
		ranker:     e.ranker,
		limits:     e.limits,
		target:     tgt,
		layers:     layers,
		now:        snap.takenAt,
		bestFactor: e.ranker.maxEdgeFactor(snap.maxStrength),
		onPath:     make([]bool, len(snap.keys)),
	}
	s.push(src, arc{})
	err := s.visit(src, 1)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Enumeration{}, fmt.Errorf("%w: %s -> %s after %d expansions", ErrComputationTimeout, source, target, s.expansions)
		}
		return Enumeration{}, err
	}

	if s.top.Len() == 0 {
		return Enumeration{Expansions: s.expansions, Truncated: s.truncated},
			fmt.Errorf("%w: %s -> %s within %d hops", ErrNoPathFound, source, target, e.limits.MaxHops)
	}

	paths := make([]Path, len(s.top))
	copy(paths, s.top)
	sort.Slice(paths, func(i, j int) bool { return RankBefore(paths[i], paths[j]) })
	return Enumeration{Paths: paths, Expansions: s.expansions, Truncated: s.truncated}, nil
}

// search holds the per-run state. onPath tracks membership of the in-progress path only.
type search struct {
	ctx        context.Context
	snap       *Snapshot
	ranker     *Ranker
	limits     Limits
	target     int32
	layers     []*roaring.Bitmap
	now        time.Time
	bestFactor float64

	stack      []int32
	via        []arc
	onPath     []bool
	top        worstFirst
	expansions int
	truncated  bool
}

type child struct {
	arc    arc
	factor float64
}

func (s *search) push(node int32, a arc) {
	s.stack = append(s.stack, node)
	s.via = append(s.via, a)
	s.onPath[node] = true
}

func (s *search) pop() {
	last := len(s.stack) - 1
	s.onPath[s.stack[last]] = false
	s.stack = s.stack[:last]
	s.via = s.via[:last]
}

func (s *search) visit(node int32, score float64) error {
	if node == s.target {
		s.offer(score)
		return nil
	}
	remaining := s.limits.MaxHops - (len(s.stack) - 1)
	if remaining <= 0 || s.truncated {
		return nil
	}

	s.expansions++
	if s.expansions > s.limits.MaxExpansions {
		s.truncated = true
		return nil
	}
	if s.expansions%ctxCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}

	reach := s.layers[remaining-1]
	children := make([]child, 0, len(s.snap.adj[node]))
	for _, a := range s.snap.adj[node] {
		if s.onPath[a.to] || !reach.Contains(uint32(a.to)) {
			continue
		}
		children = append(children, child{arc: a, factor: s.ranker.EdgeFactor(s.snap.edge(node, a), s.now)})
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].factor != children[j].factor {
			return children[i].factor > children[j].factor
		}
		return s.snap.keys[children[i].arc.to] < s.snap.keys[children[j].arc.to]
	})

	for _, c := range children {
		next := score * c.factor
		if s.full() && s.bound(next, c.arc.to, remaining-1) < s.top[0].Score {
			continue
		}
		s.push(c.arc.to, c.arc)
		err := s.visit(c.arc.to, next)
		s.pop()
		if err != nil {
			return err
		}
		if s.truncated {
			return nil
		}
	}
	return nil
}

// bound is the best score any completion from node can reach within allowed more hops.
func (s *search) bound(score float64, node int32, allowed int) float64 {
	if node == s.target {
		return score * boundSlack
	}
	minHops := allowed
	for d := 1; d <= allowed; d++ {
		if s.layers[d].Contains(uint32(node)) {
			minHops = d
			break
		}
	}
	hops := minHops
	if s.bestFactor > 1 {
		hops = allowed
	}
	return score * math.Pow(s.bestFactor, float64(hops)) * boundSlack
}

func (s *search) full() bool {
	return s.top.Len() >= s.limits.MaxCandidates
}

func (s *search) offer(score float64) {
	if s.full() && score < s.top[0].Score {
		return
	}
	nodes := make([]string, len(s.stack))
	for i, idx := range s.stack {
		nodes[i] = s.snap.keys[idx]
	}
	edges := make([]Edge, 0, len(s.stack)-1)
	for i := 1; i < len(s.stack); i++ {
		edges = append(edges, s.snap.edge(s.stack[i-1], s.via[i]))
	}
	p := s.ranker.Score(Path{Nodes: nodes, Edges: edges}, s.now)

	if !s.full() {
		heap.Push(&s.top, p)
		return
	}
	if RankBefore(p, s.top[0]) {
		s.top[0] = p
		heap.Fix(&s.top, 0)
	}
}

// worstFirst is a heap whose root is the lowest-ranked retained path.
type worstFirst []Path

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return RankBefore(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Path)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}
