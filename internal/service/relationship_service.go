package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/domain"
)

// ErrInvalidInput marks payloads rejected before reaching the graph.
var ErrInvalidInput = errors.New("invalid input")

// GraphRepository is the storage contract required by the relationship service.
type GraphRepository interface {
	UpsertUser(ctx context.Context, user domain.User) error
	UpsertConnection(ctx context.Context, conn domain.Connection) error
}

// RelationshipService validates ingestion payloads and delegates persistence to the repository.
type RelationshipService struct {
	repo  GraphRepository
	nowFn func() time.Time
}

// NewRelationshipService constructs a RelationshipService.
func NewRelationshipService(repo GraphRepository) *RelationshipService {
	return &RelationshipService{
		repo:  repo,
		nowFn: time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *RelationshipService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// UpsertUser ingests a user payload.
func (s *RelationshipService) UpsertUser(ctx context.Context, input UserInput) (domain.UserSummary, error) {
	id := sanitizeString(input.ID)
	if id == "" {
		return domain.UserSummary{}, fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}

	now := s.nowFn().UTC()
	createdAt := now
	updatedAt := now
	if input.CreatedAt != nil {
		createdAt = input.CreatedAt.UTC()
	}
	if input.UpdatedAt != nil {
		updatedAt = input.UpdatedAt.UTC()
	}

	user := domain.User{
		ID:         id,
		Name:       sanitizeString(input.Name),
		Headline:   sanitizeString(input.Headline),
		Attributes: normalizeAttributes(input.Attributes),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return domain.UserSummary{}, err
	}
	return domain.UserSummary{ID: user.ID, Name: user.Name, UpdatedAt: user.UpdatedAt}, nil
}

// UpsertConnection ingests a relationship between two existing users.
func (s *RelationshipService) UpsertConnection(ctx context.Context, input ConnectionInput) error {
	source := sanitizeString(input.SourceUserID)
	target := sanitizeString(input.TargetUserID)
	switch {
	case source == "" || target == "":
		return fmt.Errorf("%w: sourceUserId and targetUserId are required", ErrInvalidInput)
	case source == target:
		return fmt.Errorf("%w: a user cannot connect to itself", ErrInvalidInput)
	case !(input.Strength > 0):
		return fmt.Errorf("%w: strength must be in (0, 1]", ErrInvalidInput)
	}
	kind := normalizeConnectionType(input.Type)
	if kind == "" {
		return fmt.Errorf("%w: unknown connection type %q", ErrInvalidInput, input.Type)
	}

	mutual := true
	if input.Mutual != nil {
		mutual = *input.Mutual
	}
	var lastActive *time.Time
	if input.LastActiveAt != nil && !input.LastActiveAt.IsZero() {
		ts := input.LastActiveAt.UTC()
		lastActive = &ts
	}

	return s.repo.UpsertConnection(ctx, domain.Connection{
		SourceUserID: source,
		TargetUserID: target,
		Strength:     clampFloat(input.Strength, 0, 1),
		Type:         kind,
		Mutual:       mutual,
		LastActiveAt: lastActive,
		UpdatedAt:    s.nowFn().UTC(),
	})
}
