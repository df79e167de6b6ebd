// Package pathrank ranks multi-hop introduction paths between two users and serves them
// page by page from a cache, computing each ranking at most once per key at a time.
package pathrank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultComputeTimeout = 5 * time.Second
	defaultUsageTimeout   = 2 * time.Second
)

// Options configures an Engine.
type Options struct {
	Weights        Weights
	Limits         Limits
	CacheCapacity  int
	CacheTTL       time.Duration
	ComputeTimeout time.Duration
	UsageTimeout   time.Duration
	UsagePolicy    UsagePolicy
}

// DefaultOptions returns the production engine configuration.
func DefaultOptions() Options {
	return Options{
		Weights:        DefaultWeights(),
		Limits:         DefaultLimits(),
		CacheCapacity:  defaultCacheCapacity,
		CacheTTL:       defaultCacheTTL,
		ComputeTimeout: defaultComputeTimeout,
		UsageTimeout:   defaultUsageTimeout,
		UsagePolicy:    UsagePolicyServed,
	}
}

// Engine serves ranked connection paths.
type Engine struct {
	store      GraphStore
	usage      UsageRecorder
	logger     *slog.Logger
	opts       Options
	ranker     *Ranker
	enumerator *Enumerator
	cache      *Cache
	coalescer  *Coalescer
	nowFn      func() time.Time
	runs       atomic.Int64
}

// NewEngine wires an Engine over the given graph store. usage may be nil.
func NewEngine(store GraphStore, usage UsageRecorder, logger *slog.Logger, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("graph store is required")
	}
	if usage == nil {
		usage = NopUsageRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = defaultComputeTimeout
	}
	if opts.UsageTimeout <= 0 {
		opts.UsageTimeout = defaultUsageTimeout
	}
	if opts.UsagePolicy == "" {
		opts.UsagePolicy = UsagePolicyServed
	}

	cache, err := NewCache(opts.CacheCapacity, opts.CacheTTL)
	if err != nil {
		return nil, err
	}
	ranker := NewRanker(opts.Weights)
	enumerator := NewEnumerator(ranker, opts.Limits)
	opts.Weights = ranker.Weights()
	opts.Limits = enumerator.Limits()

	return &Engine{
		store:      store,
		usage:      usage,
		logger:     logger.With("component", "pathrank"),
		opts:       opts,
		ranker:     ranker,
		enumerator: enumerator,
		cache:      cache,
		coalescer:  NewCoalescer(),
		nowFn:      time.Now,
	}, nil
}

// WithClock overrides the time provider of the engine and its cache.
func (e *Engine) WithClock(nowFn func() time.Time) {
	if nowFn == nil {
		return
	}
	e.nowFn = nowFn
	e.cache.WithClock(nowFn)
}

// Options returns the effective configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Runs returns how many enumeration runs have started.
func (e *Engine) Runs() int64 {
	return e.runs.Load()
}

// State reports the coalescer state for key.
func (e *Engine) State(key RequestKey) State {
	return e.coalescer.State(key)
}

// Waiters reports how many callers wait on the run for key.
func (e *Engine) Waiters(key RequestKey) int {
	return e.coalescer.Waiters(key)
}

// Invalidate drops the cached ranking for key.
func (e *Engine) Invalidate(key RequestKey) {
	e.cache.Invalidate(key)
}

// Page reads the path at index from the cached ranking without ever computing.
func (e *Engine) Page(key RequestKey, index int) (Path, error) {
	return e.cache.Page(key, index)
}

// Request serves the path at req.PathIndex. "No path" and "no more paths" are reported
// through Response.Status; errors are reserved for unknown users, invalid requests and
// retryable infrastructure failures.
func (e *Engine) Request(ctx context.Context, req Request) (Response, error) {
	if err := validate(req); err != nil {
		requestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return Response{}, err
	}
	key := req.Key()

	res, hit, err := e.Rank(ctx, key)
	if err != nil {
		requestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return Response{}, err
	}

	resp := Response{
		Key:         key,
		Index:       req.PathIndex,
		Total:       res.Len(),
		Fingerprint: res.Fingerprint,
		CacheHit:    hit,
		ComputedAt:  res.ComputedAt,
		Truncated:   res.Truncated,
	}
	path, err := pageOf(res, req.PathIndex)
	switch {
	case err == nil:
		resp.Status = StatusOK
		resp.Path = &path
	case res.Len() == 0:
		resp.Status = StatusNoPath
	default:
		resp.Status = StatusNoMorePaths
	}
	requestsTotal.WithLabelValues(string(resp.Status)).Inc()

	if resp.Status == StatusOK || e.opts.UsagePolicy == UsagePolicyAttempt {
		e.recordUsage(ctx, key.Source)
	}
	return resp, nil
}

// Rank returns the fresh ranking for key, computing it when absent or stale. hit reports
// whether the ranking came straight from the cache.
func (e *Engine) Rank(ctx context.Context, key RequestKey) (res *RankedResult, hit bool, err error) {
	if res, ok := e.cache.Get(key); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return res, true, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	res, joined, err := e.coalescer.Do(ctx, key, func() (*RankedResult, error) {
		return e.compute(ctx, key)
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) && !errors.Is(err, ErrComputationTimeout) {
			e.logger.Debug("caller stopped waiting for ranking", "key", key.String(), "error", err)
			return nil, false, callerAbort(key, err)
		}
		return nil, false, err
	}
	if joined {
		e.logger.Debug("joined in-flight ranking", "key", key.String())
	}
	return res, false, nil
}

// compute performs one snapshot read plus enumeration. It runs detached from the
// triggering caller's cancellation and is bounded by ComputeTimeout instead.
func (e *Engine) compute(ctx context.Context, key RequestKey) (*RankedResult, error) {
	if res, ok := e.cache.Get(key); ok {
		return res, nil
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ComputeTimeout)
	defer cancel()

	e.runs.Add(1)
	start := time.Now()
	logger := e.logger.With("key", key.String())

	res, err := e.run(runCtx, key)
	enumerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		enumerationRuns.WithLabelValues(outcomeLabel(err)).Inc()
		if Retryable(err) {
			logger.Warn("ranking run failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		} else {
			logger.Debug("ranking run rejected", "error", err)
		}
		return nil, err
	}
	enumerationRuns.WithLabelValues("ok").Inc()

	e.cache.Put(key, res)
	logger.Debug("ranking computed",
		"paths", res.Len(),
		"truncated", res.Truncated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, key RequestKey) (*RankedResult, error) {
	snap, err := e.store.Snapshot(ctx, SnapshotRequest{
		Source:  key.Source,
		Target:  key.Target,
		MaxHops: e.opts.Limits.MaxHops,
	})
	if err != nil {
		return nil, classifyRunError(ctx, fmt.Errorf("snapshot %s: %w", key, err))
	}
	for _, k := range []string{key.Source, key.Target} {
		if !snap.Exists(k) {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, k)
		}
	}

	enum, err := e.enumerator.Enumerate(ctx, snap, key.Source, key.Target)
	if err != nil && !errors.Is(err, ErrNoPathFound) {
		return nil, classifyRunError(ctx, err)
	}

	now := e.nowFn()
	return &RankedResult{
		Key:         key,
		Paths:       enum.Paths,
		ComputedAt:  now,
		ExpiresAt:   now.Add(e.cache.TTL()),
		Fingerprint: fingerprint(enum.Paths),
		Truncated:   enum.Truncated || snap.Truncated(),
	}, nil
}

func (e *Engine) recordUsage(ctx context.Context, userKey string) {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.UsageTimeout)
	defer cancel()
	if err := e.usage.RecordSuccessfulQuery(uctx, userKey); err != nil {
		usageFailures.Inc()
		e.logger.Warn("recording usage failed", "userId", userKey, "error", err)
	}
}

// callerAbort maps the caller's own context ending while it waited. A missed deadline
// is a retryable timeout; cancellation stays context.Canceled.
func callerAbort(key RequestKey, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: gave up waiting for %s: %w", ErrComputationTimeout, key, err)
	}
	return fmt.Errorf("waiting for %s: %w", key, err)
}

func validate(req Request) error {
	switch {
	case strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Target) == "":
		return fmt.Errorf("%w: source and target are required", ErrInvalidRequest)
	case req.Source == req.Target:
		return fmt.Errorf("%w: source and target are the same user", ErrInvalidRequest)
	case req.PathIndex < 0:
		return fmt.Errorf("%w: negative path index %d", ErrInvalidRequest, req.PathIndex)
	}
	return nil
}

// fingerprint identifies a ranking order so clients can detect a re-ranking between pages.
func fingerprint(paths []Path) uint64 {
	d := xxhash.New()
	for _, p := range paths {
		for _, n := range p.Nodes {
			_, _ = d.WriteString(n)
			_, _ = d.WriteString("\x00")
		}
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}
