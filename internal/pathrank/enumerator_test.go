package pathrank

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangleSnapshot() *Snapshot {
	b := NewSnapshotBuilder()
	for _, e := range []Edge{
		{From: "A", To: "B", Strength: 0.9},
		{From: "B", To: "C", Strength: 0.8},
		{From: "A", To: "C", Strength: 0.3},
	} {
		b.AddEdge(e)
		b.AddEdge(Edge{From: e.To, To: e.From, Strength: e.Strength})
	}
	return b.Build(testEpoch)
}

func nodeSequences(paths []Path) [][]string {
	out := make([][]string, len(paths))
	for i, p := range paths {
		out[i] = p.Nodes
	}
	return out
}

func TestEnumeratePrefersStrongIndirectPath(t *testing.T) {
	enum := NewEnumerator(NewRanker(Weights{HopPenalty: 0.9}), Limits{MaxHops: 3, MaxCandidates: 10})

	got, err := enum.Enumerate(context.Background(), triangleSnapshot(), "A", "C")
	require.NoError(t, err)

	require.Equal(t, [][]string{{"A", "B", "C"}, {"A", "C"}}, nodeSequences(got.Paths))
	best := got.Paths[0]
	assert.Equal(t, 2, best.Hops)
	assert.InDelta(t, 0.72, best.Strength, 1e-12)
	assert.InDelta(t, 0.72*0.81, best.Score, 1e-12)
	assert.Len(t, best.Edges, 2)
	assert.False(t, got.Truncated)
}

func TestEnumerateErrors(t *testing.T) {
	snap := triangleSnapshot()
	b := NewSnapshotBuilder()
	b.AddEdge(Edge{From: "A", To: "B", Strength: 1})
	b.AddNode(Node{Key: "lonely"})
	disconnected := b.Build(testEpoch)

	enum := NewEnumerator(NewRanker(DefaultWeights()), DefaultLimits())
	tests := []struct {
		name   string
		snap   *Snapshot
		source string
		target string
		want   error
	}{
		{name: "unknown source", snap: snap, source: "X", target: "C", want: ErrNodeNotFound},
		{name: "unknown target", snap: snap, source: "A", target: "X", want: ErrNodeNotFound},
		{name: "same node", snap: snap, source: "A", target: "A", want: ErrInvalidRequest},
		{name: "disconnected", snap: disconnected, source: "A", target: "lonely", want: ErrNoPathFound},
		{name: "direction matters", snap: disconnected, source: "B", target: "A", want: ErrNoPathFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := enum.Enumerate(context.Background(), tc.snap, tc.source, tc.target)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEnumerateRespectsHopLimit(t *testing.T) {
	b := NewSnapshotBuilder()
	chain := []string{"a", "b", "c", "d", "e"}
	for i := 1; i < len(chain); i++ {
		b.AddEdge(Edge{From: chain[i-1], To: chain[i], Strength: 0.9})
	}
	snap := b.Build(testEpoch)

	short := NewEnumerator(NewRanker(DefaultWeights()), Limits{MaxHops: 3})
	_, err := short.Enumerate(context.Background(), snap, "a", "e")
	require.ErrorIs(t, err, ErrNoPathFound)

	long := NewEnumerator(NewRanker(DefaultWeights()), Limits{MaxHops: 4})
	got, err := long.Enumerate(context.Background(), snap, "a", "e")
	require.NoError(t, err)
	require.Len(t, got.Paths, 1)
	assert.Equal(t, chain, got.Paths[0].Nodes)
}

func TestLimitsNormalized(t *testing.T) {
	l := Limits{MaxHops: 99, MaxCandidates: 500}.normalized()
	assert.Equal(t, MaxHopsLimit, l.MaxHops)
	assert.Equal(t, MaxCandidatesLimit, l.MaxCandidates)
	assert.Equal(t, defaultMaxExpansions, l.MaxExpansions)

	assert.Equal(t, DefaultLimits(), Limits{}.normalized())
}

type generatedEdge struct {
	from, to string
	strength float64
	recency  time.Time
}

func generateGraph(seed int64, nodes int, density float64) []generatedEdge {
	rng := rand.New(rand.NewSource(seed))
	var edges []generatedEdge
	for i := 0; i < nodes; i++ {
		for j := 0; j < nodes; j++ {
			if i == j || rng.Float64() > density {
				continue
			}
			var recency time.Time
			if rng.Intn(3) > 0 {
				recency = testEpoch.Add(-time.Duration(rng.Intn(90*24)) * time.Hour)
			}
			edges = append(edges, generatedEdge{
				from:     fmt.Sprintf("u%02d", i),
				to:       fmt.Sprintf("u%02d", j),
				strength: 0.05 + 0.95*rng.Float64(),
				recency:  recency,
			})
		}
	}
	// keep the endpoints used below connected
	edges = append(edges,
		generatedEdge{from: "u00", to: "u07", strength: 0.4},
		generatedEdge{from: "u07", to: "u13", strength: 0.4},
	)
	return edges
}

func buildGenerated(edges []generatedEdge) *Snapshot {
	b := NewSnapshotBuilder()
	for _, e := range edges {
		b.AddEdge(Edge{From: e.from, To: e.to, Strength: e.strength, Recency: e.recency})
	}
	return b.Build(testEpoch)
}

// bruteForce ranks every simple path within maxHops and keeps the best k.
func bruteForce(snap *Snapshot, r *Ranker, source, target string, maxHops, k int) []Path {
	var all []Path
	onPath := map[string]bool{source: true}
	var walk func(nodes []string, edges []Edge)
	walk = func(nodes []string, edges []Edge) {
		last := nodes[len(nodes)-1]
		if last == target {
			all = append(all, r.Score(Path{
				Nodes: append([]string(nil), nodes...),
				Edges: append([]Edge(nil), edges...),
			}, snap.TakenAt()))
			return
		}
		if len(edges) == maxHops {
			return
		}
		for _, e := range snap.Neighbors(last) {
			if onPath[e.To] {
				continue
			}
			onPath[e.To] = true
			walk(append(nodes, e.To), append(edges, e))
			onPath[e.To] = false
		}
	}
	walk([]string{source}, nil)
	sort.Slice(all, func(i, j int) bool { return RankBefore(all[i], all[j]) })
	if len(all) > k {
		all = all[:k]
	}
	return all
}

func TestEnumerateMatchesExhaustiveSearch(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1234} {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			snap := buildGenerated(generateGraph(seed, 14, 0.3))
			ranker := NewRanker(DefaultWeights())
			enum := NewEnumerator(ranker, Limits{MaxHops: 4, MaxCandidates: 8})

			got, err := enum.Enumerate(context.Background(), snap, "u00", "u13")
			require.NoError(t, err)

			want := bruteForce(snap, ranker, "u00", "u13", 4, 8)
			require.Equal(t, nodeSequences(want), nodeSequences(got.Paths))
			for i := range want {
				assert.Equal(t, want[i].Score, got.Paths[i].Score)
			}
		})
	}
}

func TestEnumerateIsDeterministic(t *testing.T) {
	edges := generateGraph(99, 20, 0.25)
	shuffled := append([]generatedEdge(nil), edges...)
	rand.New(rand.NewSource(5)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	enum := NewEnumerator(NewRanker(DefaultWeights()), Limits{MaxHops: 5, MaxCandidates: 20})
	first, err := enum.Enumerate(context.Background(), buildGenerated(edges), "u00", "u13")
	require.NoError(t, err)
	second, err := enum.Enumerate(context.Background(), buildGenerated(shuffled), "u00", "u13")
	require.NoError(t, err)

	require.Equal(t, first.Paths, second.Paths)

	for _, p := range first.Paths {
		assert.Equal(t, len(p.Nodes)-1, p.Hops)
		assert.LessOrEqual(t, p.Hops, 5)
		seen := make(map[string]bool, len(p.Nodes))
		for _, n := range p.Nodes {
			require.False(t, seen[n], "node %s repeats in %v", n, p.Nodes)
			seen[n] = true
		}
	}
}

// completeSnapshot returns a complete graph with equal strengths, which defeats pruning.
func completeSnapshot(n int) *Snapshot {
	keys := []string{"src", "tgt"}
	for i := 1; i <= n; i++ {
		keys = append(keys, fmt.Sprintf("n%02d", i))
	}
	b := NewSnapshotBuilder()
	for _, from := range keys {
		for _, to := range keys {
			b.AddEdge(Edge{From: from, To: to, Strength: 0.5})
		}
	}
	return b.Build(testEpoch)
}

func TestEnumerateTruncatesAtExpansionBudget(t *testing.T) {
	enum := NewEnumerator(NewRanker(Weights{HopPenalty: 1}), Limits{MaxHops: 6, MaxCandidates: 50, MaxExpansions: 10})

	got, err := enum.Enumerate(context.Background(), completeSnapshot(10), "src", "tgt")
	require.NoError(t, err)
	assert.True(t, got.Truncated)
	assert.NotEmpty(t, got.Paths)
	assert.LessOrEqual(t, got.Expansions, 11)
}

func TestEnumerateTimesOut(t *testing.T) {
	enum := NewEnumerator(NewRanker(Weights{HopPenalty: 1}), Limits{MaxHops: 6, MaxCandidates: 50})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := enum.Enumerate(ctx, completeSnapshot(10), "src", "tgt")
	require.ErrorIs(t, err, ErrComputationTimeout)
	assert.True(t, Retryable(err))
}
