package pathrank

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is an in-process GraphStore. It backs tests, the CLI's dataset mode and
// small deployments that keep the relationship graph in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]map[string]any
	out   map[string]map[string]Edge
	err   error
	hook  func(ctx context.Context, req SnapshotRequest) error
	nowFn func() time.Time
	calls atomic.Int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]any),
		out:   make(map[string]map[string]Edge),
		nowFn: time.Now,
	}
}

// AddNode creates or replaces a user node.
func (m *MemoryStore) AddNode(n Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.Key] = cloneAttributes(n.Attributes)
}

// AddEdge inserts a directed edge, creating missing endpoints without attributes.
func (m *MemoryStore) AddEdge(e Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addEdgeLocked(e)
}

// Connect inserts the edge in both directions, the way mutual relationships are stored.
func (m *MemoryStore) Connect(e Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addEdgeLocked(e)
	mirrored := e
	mirrored.From, mirrored.To = e.To, e.From
	m.addEdgeLocked(mirrored)
}

// RemoveNode deletes a node together with its incident edges.
func (m *MemoryStore) RemoveNode(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, key)
	delete(m.out, key)
	for _, edges := range m.out {
		delete(edges, key)
	}
}

func (m *MemoryStore) addEdgeLocked(e Edge) {
	for _, key := range []string{e.From, e.To} {
		if _, ok := m.nodes[key]; !ok {
			m.nodes[key] = nil
		}
	}
	edges, ok := m.out[e.From]
	if !ok {
		edges = make(map[string]Edge)
		m.out[e.From] = edges
	}
	edges[e.To] = e
}

// WithError makes subsequent Snapshot calls fail with err. Passing nil clears it.
func (m *MemoryStore) WithError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithSnapshotHook installs a function run before every snapshot read. Tests use it to
// gate or slow down computations.
func (m *MemoryStore) WithSnapshotHook(hook func(ctx context.Context, req SnapshotRequest) error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
	return m
}

// WithClock overrides the snapshot timestamp source.
func (m *MemoryStore) WithClock(nowFn func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	if nowFn != nil {
		m.nowFn = nowFn
	}
	return m
}

// SnapshotCalls returns how many snapshots have been requested.
func (m *MemoryStore) SnapshotCalls() int64 {
	return m.calls.Load()
}

// Snapshot copies the sub-graph reachable from the source within MaxHops, plus the
// target node when it exists. MaxHops <= 0 copies the whole graph.
func (m *MemoryStore) Snapshot(ctx context.Context, req SnapshotRequest) (*Snapshot, error) {
	m.calls.Add(1)

	m.mu.RLock()
	hook := m.hook
	m.mu.RUnlock()
	if hook != nil {
		if err := hook(ctx, req); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	b := NewSnapshotBuilder()
	for _, key := range []string{req.Source, req.Target} {
		if attrs, ok := m.nodes[key]; ok {
			b.AddNode(Node{Key: key, Attributes: attrs})
		}
	}

	if req.MaxHops <= 0 {
		for key, attrs := range m.nodes {
			b.AddNode(Node{Key: key, Attributes: attrs})
		}
		for _, edges := range m.out {
			for _, e := range edges {
				b.AddEdge(e)
			}
		}
		return b.Build(m.nowFn()), nil
	}

	if _, ok := m.nodes[req.Source]; !ok {
		return b.Build(m.nowFn()), nil
	}

	// Edges leaving nodes within MaxHops-1 of the source are the only ones a path of at
	// most MaxHops hops can use.
	seen := map[string]struct{}{req.Source: {}}
	frontier := []string{req.Source}
	for depth := 0; depth < req.MaxHops && len(frontier) > 0; depth++ {
		var next []string
		for _, from := range frontier {
			for to, e := range m.out[from] {
				b.AddNode(Node{Key: to, Attributes: m.nodes[to]})
				b.AddEdge(e)
				if _, ok := seen[to]; !ok {
					seen[to] = struct{}{}
					next = append(next, to)
				}
			}
		}
		frontier = next
	}
	return b.Build(m.nowFn()), nil
}

func cloneAttributes(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
