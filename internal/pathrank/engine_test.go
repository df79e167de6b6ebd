package pathrank

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedUsage struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (r *recordedUsage) RecordSuccessfulQuery(ctx context.Context, userKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userKey)
	return r.err
}

func (r *recordedUsage) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

func triangleStore() *MemoryStore {
	store := NewMemoryStore().WithClock(func() time.Time { return testEpoch })
	store.Connect(Edge{From: "A", To: "B", Strength: 0.9})
	store.Connect(Edge{From: "B", To: "C", Strength: 0.8})
	store.Connect(Edge{From: "A", To: "C", Strength: 0.3})
	store.AddNode(Node{Key: "D"})
	return store
}

func newTestEngine(t *testing.T, store GraphStore, usage UsageRecorder, tweak func(*Options)) (*Engine, *fakeClock) {
	t.Helper()
	opts := DefaultOptions()
	opts.Weights = Weights{HopPenalty: 0.9}
	opts.CacheTTL = time.Minute
	if tweak != nil {
		tweak(&opts)
	}
	engine, err := NewEngine(store, usage, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	require.NoError(t, err)
	clock := &fakeClock{now: testEpoch}
	engine.WithClock(clock.Now)
	return engine, clock
}

func TestEngineServesPagesFromOneRun(t *testing.T) {
	store := triangleStore()
	usage := &recordedUsage{}
	engine, _ := newTestEngine(t, store, usage, nil)
	ctx := context.Background()

	first, err := engine.Request(ctx, Request{Source: "A", Target: "C"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, first.Status)
	require.NotNil(t, first.Path)
	assert.Equal(t, []string{"A", "B", "C"}, first.Path.Nodes)
	assert.Equal(t, 2, first.Total)
	assert.False(t, first.CacheHit)
	assert.Equal(t, testEpoch, first.ComputedAt)

	second, err := engine.Request(ctx, Request{Source: "A", Target: "C", PathIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, second.Status)
	assert.Equal(t, []string{"A", "C"}, second.Path.Nodes)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	third, err := engine.Request(ctx, Request{Source: "A", Target: "C", PathIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusNoMorePaths, third.Status)
	assert.Nil(t, third.Path)
	assert.Equal(t, 2, third.Total)

	assert.Equal(t, int64(1), engine.Runs())
	assert.Equal(t, int64(1), store.SnapshotCalls())
	assert.Equal(t, []string{"A", "A"}, usage.calls(), "only requests answered with a path count")

	page, err := engine.Page(RequestKey{Source: "A", Target: "C"}, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Path.Nodes, page.Nodes)
}

func TestEngineCoalescesConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	store := triangleStore().WithSnapshotHook(func(ctx context.Context, req SnapshotRequest) error {
		<-release
		return nil
	})
	engine, _ := newTestEngine(t, store, nil, nil)
	key := RequestKey{Source: "A", Target: "C"}

	type reply struct {
		resp Response
		err  error
	}
	replies := make(chan reply, 2)
	call := func(index int) {
		resp, err := engine.Request(context.Background(), Request{Source: "A", Target: "C", PathIndex: index})
		replies <- reply{resp: resp, err: err}
	}

	go call(0)
	require.Eventually(t, func() bool { return engine.State(key) == StateInFlight }, time.Second, time.Millisecond)
	go call(1)
	require.Eventually(t, func() bool { return engine.Waiters(key) == 2 }, time.Second, time.Millisecond)
	close(release)

	got := map[int]Response{}
	for i := 0; i < 2; i++ {
		r := <-replies
		require.NoError(t, r.err)
		got[r.resp.Index] = r.resp
	}
	assert.Equal(t, []string{"A", "B", "C"}, got[0].Path.Nodes)
	assert.Equal(t, []string{"A", "C"}, got[1].Path.Nodes)
	assert.Equal(t, got[0].Fingerprint, got[1].Fingerprint)
	assert.Equal(t, int64(1), engine.Runs())
	assert.Equal(t, int64(1), store.SnapshotCalls())
	assert.Equal(t, StateIdle, engine.State(key))
}

func TestEngineUnknownUserIsNotCached(t *testing.T) {
	store := triangleStore()
	engine, _ := newTestEngine(t, store, nil, nil)
	ctx := context.Background()

	_, err := engine.Request(ctx, Request{Source: "A", Target: "Z"})
	require.ErrorIs(t, err, ErrNodeNotFound)
	assert.False(t, Retryable(err))

	store.Connect(Edge{From: "C", To: "Z", Strength: 0.5})
	resp, err := engine.Request(ctx, Request{Source: "A", Target: "Z"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, int64(2), engine.Runs())
}

func TestEngineCachesEmptyRankingUntilExpiry(t *testing.T) {
	store := triangleStore()
	engine, clock := newTestEngine(t, store, nil, nil)
	ctx := context.Background()
	req := Request{Source: "A", Target: "D"}

	resp, err := engine.Request(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusNoPath, resp.Status)
	assert.Zero(t, resp.Total)

	resp, err = engine.Request(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusNoPath, resp.Status)
	assert.True(t, resp.CacheHit)
	assert.Equal(t, int64(1), engine.Runs())

	store.Connect(Edge{From: "C", To: "D", Strength: 0.6})
	clock.Advance(time.Minute)

	resp, err = engine.Request(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, []string{"A", "B", "C", "D"}, resp.Path.Nodes)
	assert.Equal(t, int64(2), engine.Runs())
}

func TestEngineInvalidateForcesRecompute(t *testing.T) {
	store := triangleStore()
	engine, _ := newTestEngine(t, store, nil, nil)
	ctx := context.Background()
	req := Request{Source: "A", Target: "C"}

	_, err := engine.Request(ctx, req)
	require.NoError(t, err)
	engine.Invalidate(req.Key())
	_, err = engine.Page(req.Key(), 0)
	require.ErrorIs(t, err, ErrNotCached)

	resp, err := engine.Request(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, int64(2), engine.Runs())
}

func TestEngineStoreFailureIsRetryable(t *testing.T) {
	store := triangleStore().WithError(errors.New("connection refused"))
	engine, _ := newTestEngine(t, store, nil, nil)
	ctx := context.Background()
	req := Request{Source: "A", Target: "C"}

	_, err := engine.Request(ctx, req)
	require.ErrorIs(t, err, ErrGraphStoreUnavailable)
	assert.True(t, Retryable(err))

	store.WithError(nil)
	resp, err := engine.Request(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, int64(2), engine.Runs(), "failures are never cached")
}

func TestEngineComputeTimeout(t *testing.T) {
	store := triangleStore().WithSnapshotHook(func(ctx context.Context, req SnapshotRequest) error {
		<-ctx.Done()
		return ctx.Err()
	})
	engine, _ := newTestEngine(t, store, nil, func(o *Options) {
		o.ComputeTimeout = 20 * time.Millisecond
	})

	_, err := engine.Request(context.Background(), Request{Source: "A", Target: "C"})
	require.ErrorIs(t, err, ErrComputationTimeout)
	assert.True(t, Retryable(err))
}

func TestEngineCallerCancellationDoesNotAbortRun(t *testing.T) {
	release := make(chan struct{})
	store := triangleStore().WithSnapshotHook(func(ctx context.Context, req SnapshotRequest) error {
		<-release
		return nil
	})
	engine, _ := newTestEngine(t, store, nil, nil)
	key := RequestKey{Source: "A", Target: "C"}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Request(ctx, Request{Source: "A", Target: "C"})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return engine.State(key) == StateInFlight }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, err := engine.Page(key, 0)
		return err == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), engine.Runs())
}

func TestEngineCallerDeadlineIsRetryable(t *testing.T) {
	release := make(chan struct{})
	store := triangleStore().WithSnapshotHook(func(ctx context.Context, req SnapshotRequest) error {
		<-release
		return nil
	})
	engine, _ := newTestEngine(t, store, nil, nil)
	key := RequestKey{Source: "A", Target: "C"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := engine.Request(ctx, Request{Source: "A", Target: "C"})
	require.ErrorIs(t, err, ErrComputationTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, Retryable(err))

	close(release)
	require.Eventually(t, func() bool {
		_, err := engine.Page(key, 0)
		return err == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), engine.Runs())
}

type snapshotFunc func(ctx context.Context, req SnapshotRequest) (*Snapshot, error)

func (f snapshotFunc) Snapshot(ctx context.Context, req SnapshotRequest) (*Snapshot, error) {
	return f(ctx, req)
}

func TestEngineReportsCappedSnapshot(t *testing.T) {
	store := snapshotFunc(func(ctx context.Context, req SnapshotRequest) (*Snapshot, error) {
		b := NewSnapshotBuilder()
		b.AddEdge(Edge{From: "A", To: "B", Strength: 0.9})
		b.AddEdge(Edge{From: "B", To: "C", Strength: 0.8})
		b.MarkTruncated()
		return b.Build(testEpoch), nil
	})
	engine, _ := newTestEngine(t, store, nil, nil)

	resp, err := engine.Request(context.Background(), Request{Source: "A", Target: "C"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.True(t, resp.Truncated)

	full, err := engine.Request(context.Background(), Request{Source: "B", Target: "C"})
	require.NoError(t, err)
	assert.True(t, full.Truncated, "every ranking over a capped snapshot is flagged")
}

func TestEngineUsageFailureIsSwallowed(t *testing.T) {
	usage := &recordedUsage{err: errors.New("metrics store down")}
	engine, _ := newTestEngine(t, triangleStore(), usage, nil)

	resp, err := engine.Request(context.Background(), Request{Source: "A", Target: "C"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, []string{"A"}, usage.calls())
}

func TestEngineUsagePolicy(t *testing.T) {
	tests := []struct {
		policy UsagePolicy
		want   int
	}{
		{policy: UsagePolicyServed, want: 1},
		{policy: UsagePolicyAttempt, want: 3},
	}
	for _, tc := range tests {
		t.Run(string(tc.policy), func(t *testing.T) {
			var calls atomic.Int32
			usage := UsageRecorderFunc(func(context.Context, string) error {
				calls.Add(1)
				return nil
			})
			engine, _ := newTestEngine(t, triangleStore(), usage, func(o *Options) {
				o.UsagePolicy = tc.policy
			})
			ctx := context.Background()

			for _, req := range []Request{
				{Source: "A", Target: "C"},
				{Source: "A", Target: "C", PathIndex: 5},
				{Source: "A", Target: "D"},
			} {
				_, err := engine.Request(ctx, req)
				require.NoError(t, err)
			}
			_, err := engine.Request(ctx, Request{Source: "A", Target: "A"})
			require.ErrorIs(t, err, ErrInvalidRequest)

			assert.Equal(t, int32(tc.want), calls.Load())
		})
	}
}

func TestEngineRejectsInvalidRequests(t *testing.T) {
	engine, _ := newTestEngine(t, triangleStore(), nil, nil)
	for name, req := range map[string]Request{
		"empty source":   {Target: "C"},
		"blank target":   {Source: "A", Target: "  "},
		"same user":      {Source: "A", Target: "A"},
		"negative index": {Source: "A", Target: "C", PathIndex: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Request(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Zero(t, engine.Runs())
}

func TestNewEngineDefaults(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, DefaultOptions())
	require.Error(t, err)

	engine, err := NewEngine(NewMemoryStore(), nil, nil, Options{Limits: Limits{MaxHops: 12}})
	require.NoError(t, err)
	opts := engine.Options()
	assert.Equal(t, MaxHopsLimit, opts.Limits.MaxHops)
	assert.Equal(t, UsagePolicyServed, opts.UsagePolicy)
	assert.Equal(t, defaultComputeTimeout, opts.ComputeTimeout)
	assert.Equal(t, 1.0, opts.Weights.HopPenalty)
}

func TestFingerprintTracksOrder(t *testing.T) {
	ab := pathOf([]string{"a", "b"}, 0.5)
	acb := pathOf([]string{"a", "c", "b"}, 0.5, 0.5)

	assert.Equal(t, fingerprint([]Path{ab, acb}), fingerprint([]Path{ab, acb}))
	assert.NotEqual(t, fingerprint([]Path{ab, acb}), fingerprint([]Path{acb, ab}))
}
