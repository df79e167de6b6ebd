package domain

import "time"

// Connection types recognised by the graph.
const (
	ConnectionDirect   = "direct"
	ConnectionInferred = "inferred"
)

// Connection is a weighted relationship from SourceUserID to TargetUserID. Mutual
// connections are stored in both directions.
type Connection struct {
	SourceUserID string
	TargetUserID string
	Strength     float64
	Type         string
	Mutual       bool
	LastActiveAt *time.Time
	UpdatedAt    time.Time
}
