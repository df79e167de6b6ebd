package pathrank

import (
	"strings"
	"time"
)

// EdgeType tags how a relationship was established.
type EdgeType string

const (
	EdgeTypeDirect   EdgeType = "direct"
	EdgeTypeInferred EdgeType = "inferred"
)

// Node is a user identity in the social graph. Attributes are carried but never interpreted.
type Node struct {
	Key        string
	Attributes map[string]any
}

// Edge is a directed, weighted relationship between two users.
type Edge struct {
	From     string
	To       string
	Strength float64
	Type     EdgeType
	Recency  time.Time // zero when the store has no activity timestamp
}

// Path is an ordered, cycle-free sequence of users connecting a source to a target.
// A Path is never modified after the enumerator produces it.
type Path struct {
	Nodes    []string
	Edges    []Edge
	Hops     int
	Strength float64 // product of edge strengths
	Score    float64
}

// sequenceKey joins the node keys so paths can be compared and deduplicated.
func (p Path) sequenceKey() string {
	return strings.Join(p.Nodes, "\x00")
}

// RequestKey identifies one ranking computation.
type RequestKey struct {
	Source string
	Target string
}

func (k RequestKey) String() string {
	return k.Source + "->" + k.Target
}

// RankedResult is the cached ranking for a RequestKey. It is replaced wholesale on
// recomputation and never mutated in place.
type RankedResult struct {
	Key         RequestKey
	Paths       []Path
	ComputedAt  time.Time
	ExpiresAt   time.Time
	Fingerprint uint64
	Truncated   bool
}

// Len returns the number of ranked paths.
func (r *RankedResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Paths)
}

// Fresh reports whether the result is still valid at now.
func (r *RankedResult) Fresh(now time.Time) bool {
	return r != nil && now.Before(r.ExpiresAt)
}

// Request is the application-layer ranking request. PathIndex defaults to 0, the best path.
type Request struct {
	Source    string
	Target    string
	PathIndex int
}

// Key returns the RequestKey for the request.
func (r Request) Key() RequestKey {
	return RequestKey{Source: r.Source, Target: r.Target}
}

// Status summarises the outcome of a served request.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNoPath      Status = "no_path"
	StatusNoMorePaths Status = "no_more_paths"
)

// Response carries the path at the requested rank, or a structured empty outcome.
type Response struct {
	Key         RequestKey
	Index       int
	Status      Status
	Path        *Path
	Total       int
	Fingerprint uint64
	CacheHit    bool
	ComputedAt  time.Time
	Truncated   bool // the ranking came from a capped search or a capped snapshot
}
