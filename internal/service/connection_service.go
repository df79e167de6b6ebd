package service

import (
	"context"
	"fmt"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/config"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/pathrank"
)

// PathEngine serves ranked connection paths.
type PathEngine interface {
	Request(ctx context.Context, req pathrank.Request) (pathrank.Response, error)
}

// ConnectionService answers path queries between users.
type ConnectionService struct {
	engine PathEngine
}

// NewConnectionService wraps a path engine.
func NewConnectionService(engine PathEngine) *ConnectionService {
	return &ConnectionService{engine: engine}
}

// FindPath returns the path at the requested rank between two users.
func (s *ConnectionService) FindPath(ctx context.Context, q PathQuery) (pathrank.Response, error) {
	source := sanitizeString(q.SourceUserID)
	target := sanitizeString(q.TargetUserID)
	if source == "" || target == "" {
		return pathrank.Response{}, fmt.Errorf("%w: sourceUserId and targetUserId are required", pathrank.ErrInvalidRequest)
	}
	index := 0
	if q.PathIndex != nil {
		index = *q.PathIndex
	}
	return s.engine.Request(ctx, pathrank.Request{Source: source, Target: target, PathIndex: index})
}

// EngineOptions maps configuration onto pathrank engine options.
func EngineOptions(path config.PathConfig, usage config.UsageConfig) pathrank.Options {
	return pathrank.Options{
		Weights: pathrank.Weights{
			HopPenalty:      path.HopPenalty,
			RecencyWeight:   path.RecencyWeight,
			RecencyHalfLife: path.RecencyHalfLife,
		},
		Limits: pathrank.Limits{
			MaxHops:       path.MaxHops,
			MaxCandidates: path.MaxCandidates,
			MaxExpansions: path.MaxExpansions,
		},
		CacheCapacity:  path.CacheCapacity,
		CacheTTL:       path.CacheTTL,
		ComputeTimeout: path.ComputeTimeout,
		UsageTimeout:   usage.Timeout,
		UsagePolicy:    pathrank.ParseUsagePolicy(usage.Policy),
	}
}
