package service

import "time"

// UserInput is the inbound payload for creating or refreshing a user.
type UserInput struct {
	ID         string
	Name       string
	Headline   string
	Attributes map[string]string
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
}

// ConnectionInput is the inbound payload for a weighted relationship. Mutual defaults
// to true because most social connections are symmetric.
type ConnectionInput struct {
	SourceUserID string
	TargetUserID string
	Strength     float64
	Type         string
	Mutual       *bool
	LastActiveAt *time.Time
}

// PathQuery asks for the path at PathIndex between two users. A nil PathIndex means
// the best path.
type PathQuery struct {
	SourceUserID string
	TargetUserID string
	PathIndex    *int
}
