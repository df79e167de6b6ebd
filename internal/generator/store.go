package generator

import (
	"strings"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/pathrank"
)

// LoadStats reports what LoadMemoryStore accepted.
type LoadStats struct {
	Users       int
	Connections int
	Skipped     int
}

// LoadMemoryStore copies a dataset into an in-memory graph store. Connections with a
// missing endpoint, a self loop or a non-positive strength are skipped.
func LoadMemoryStore(store *pathrank.MemoryStore, ds Dataset) LoadStats {
	var stats LoadStats
	for _, u := range ds.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			stats.Skipped++
			continue
		}
		attrs := make(map[string]any, len(u.Attributes)+1)
		for k, v := range u.Attributes {
			attrs[k] = v
		}
		if u.Name != "" {
			attrs["name"] = u.Name
		}
		store.AddNode(pathrank.Node{Key: id, Attributes: attrs})
		stats.Users++
	}

	for _, c := range ds.Connections {
		from, to := strings.TrimSpace(c.SourceUserID), strings.TrimSpace(c.TargetUserID)
		if from == "" || to == "" || from == to || !(c.Strength > 0) {
			stats.Skipped++
			continue
		}
		edge := pathrank.Edge{
			From:     from,
			To:       to,
			Strength: min(c.Strength, 1),
			Type:     edgeType(c.Type),
		}
		if c.LastActiveAt != nil {
			edge.Recency = c.LastActiveAt.UTC()
		}
		if c.Mutual == nil || *c.Mutual {
			store.Connect(edge)
		} else {
			store.AddEdge(edge)
		}
		stats.Connections++
	}
	return stats
}

func edgeType(kind string) pathrank.EdgeType {
	if strings.EqualFold(strings.TrimSpace(kind), string(pathrank.EdgeTypeInferred)) {
		return pathrank.EdgeTypeInferred
	}
	return pathrank.EdgeTypeDirect
}
