package domain

import "time"

// User is a member of the social graph.
type User struct {
	ID         string
	Name       string
	Headline   string
	Attributes map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserSummary is the lightweight user view returned by ingestion endpoints.
type UserSummary struct {
	ID        string
	Name      string
	UpdatedAt time.Time
}
