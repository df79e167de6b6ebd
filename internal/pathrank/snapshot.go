package pathrank

import (
	"context"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"
)

// SnapshotRequest scopes the portion of the graph an enumeration may touch.
type SnapshotRequest struct {
	Source  string
	Target  string
	MaxHops int
}

// GraphStore is the read interface into the relationship graph. Implementations must
// return a Snapshot that stays consistent for the whole enumeration.
type GraphStore interface {
	Snapshot(ctx context.Context, req SnapshotRequest) (*Snapshot, error)
}

// arc is an index-based adjacency entry.
type arc struct {
	to       int32
	strength float64
	kind     EdgeType
	recency  time.Time
}

// Snapshot is an immutable, point-in-time view of nodes and weighted edges.
// Nodes live in an arena addressed by int32 index; edges reference indices, never pointers.
type Snapshot struct {
	keys        []string
	attrs       []map[string]any
	index       map[string]int32
	adj         [][]arc
	edges       int
	maxStrength float64
	takenAt     time.Time
	truncated   bool
}

// Exists reports whether the node is part of the snapshot.
func (s *Snapshot) Exists(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Node returns the node with its attribute bag.
func (s *Snapshot) Node(key string) (Node, bool) {
	idx, ok := s.index[key]
	if !ok {
		return Node{}, false
	}
	return Node{Key: key, Attributes: s.attrs[idx]}, true
}

// Neighbors returns the outgoing edges of key ordered by neighbour key.
func (s *Snapshot) Neighbors(key string) []Edge {
	idx, ok := s.index[key]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(s.adj[idx]))
	for _, a := range s.adj[idx] {
		out = append(out, s.edge(idx, a))
	}
	return out
}

// NodeCount returns the number of nodes in the snapshot.
func (s *Snapshot) NodeCount() int { return len(s.keys) }

// EdgeCount returns the number of distinct directed edges in the snapshot.
func (s *Snapshot) EdgeCount() int { return s.edges }

// TakenAt returns when the snapshot was read from its store.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Truncated reports whether the store capped the edges it copied, so rankings over this
// snapshot may miss paths.
func (s *Snapshot) Truncated() bool { return s.truncated }

func (s *Snapshot) edge(from int32, a arc) Edge {
	return Edge{
		From:     s.keys[from],
		To:       s.keys[a.to],
		Strength: a.strength,
		Type:     a.kind,
		Recency:  a.recency,
	}
}

// reachLayers returns bitmaps where layer d holds every node able to reach target in at
// most d hops. Layer 0 contains only the target.
func (s *Snapshot) reachLayers(target int32, maxHops int) []*roaring.Bitmap {
	reverse := make([][]int32, len(s.keys))
	for from, arcs := range s.adj {
		for _, a := range arcs {
			reverse[a.to] = append(reverse[a.to], int32(from))
		}
	}

	layers := make([]*roaring.Bitmap, maxHops+1)
	layers[0] = roaring.BitmapOf(uint32(target))
	frontier := []int32{target}
	for d := 1; d <= maxHops; d++ {
		layer := layers[d-1].Clone()
		var next []int32
		for _, n := range frontier {
			for _, prev := range reverse[n] {
				if layer.CheckedAdd(uint32(prev)) {
					next = append(next, prev)
				}
			}
		}
		layers[d] = layer
		frontier = next
	}
	return layers
}

// SnapshotBuilder assembles a Snapshot. Duplicate (from, to) edges collapse onto the
// strongest one; self loops and non-positive strengths are dropped.
type SnapshotBuilder struct {
	keys      []string
	attrs     []map[string]any
	index     map[string]int32
	arcs      map[int32]map[int32]arc
	truncated bool
}

// NewSnapshotBuilder returns an empty builder.
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{
		index: make(map[string]int32),
		arcs:  make(map[int32]map[int32]arc),
	}
}

// AddNode registers a node, merging attributes into any existing entry.
func (b *SnapshotBuilder) AddNode(n Node) {
	idx := b.intern(n.Key)
	if len(n.Attributes) == 0 {
		return
	}
	if b.attrs[idx] == nil {
		b.attrs[idx] = make(map[string]any, len(n.Attributes))
	}
	for k, v := range n.Attributes {
		b.attrs[idx][k] = v
	}
}

// AddEdge registers a directed edge, creating its endpoints when needed.
func (b *SnapshotBuilder) AddEdge(e Edge) {
	if e.From == "" || e.To == "" || e.From == e.To || !(e.Strength > 0) {
		return
	}
	from := b.intern(e.From)
	to := b.intern(e.To)
	kind := e.Type
	if kind == "" {
		kind = EdgeTypeDirect
	}
	out, ok := b.arcs[from]
	if !ok {
		out = make(map[int32]arc)
		b.arcs[from] = out
	}
	if existing, ok := out[to]; ok && existing.strength >= e.Strength {
		return
	}
	out[to] = arc{to: to, strength: e.Strength, kind: kind, recency: e.Recency}
}

// MarkTruncated records that the source graph held more edges than were added.
func (b *SnapshotBuilder) MarkTruncated() {
	b.truncated = true
}

func (b *SnapshotBuilder) intern(key string) int32 {
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := int32(len(b.keys))
	b.keys = append(b.keys, key)
	b.attrs = append(b.attrs, nil)
	b.index[key] = idx
	return idx
}

// Build freezes the builder into a Snapshot taken at takenAt.
func (b *SnapshotBuilder) Build(takenAt time.Time) *Snapshot {
	snap := &Snapshot{
		keys:      append([]string(nil), b.keys...),
		attrs:     append([]map[string]any(nil), b.attrs...),
		index:     make(map[string]int32, len(b.index)),
		adj:       make([][]arc, len(b.keys)),
		takenAt:   takenAt,
		truncated: b.truncated,
	}
	for k, v := range b.index {
		snap.index[k] = v
	}
	for from, out := range b.arcs {
		arcs := make([]arc, 0, len(out))
		for _, a := range out {
			arcs = append(arcs, a)
			if a.strength > snap.maxStrength {
				snap.maxStrength = a.strength
			}
		}
		sort.Slice(arcs, func(i, j int) bool {
			return snap.keys[arcs[i].to] < snap.keys[arcs[j].to]
		})
		snap.adj[from] = arcs
		snap.edges += len(arcs)
	}
	return snap
}
