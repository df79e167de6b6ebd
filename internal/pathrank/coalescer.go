package pathrank

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// State is the per-key coalescer state.
type State int

const (
	StateIdle State = iota
	StateInFlight
)

func (s State) String() string {
	if s == StateInFlight {
		return "in_flight"
	}
	return "idle"
}

// Coalescer guarantees at most one computation in flight per RequestKey. Callers that
// arrive while a run is in flight join it and receive the same result or failure.
//
// A caller whose context ends stops waiting; the run itself is not tied to any caller
// and keeps going for the remaining waiters.
type Coalescer struct {
	group singleflight.Group

	mu      sync.Mutex
	running map[RequestKey]bool
	waiters map[RequestKey]int
}

// NewCoalescer returns an idle Coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{
		running: make(map[RequestKey]bool),
		waiters: make(map[RequestKey]int),
	}
}

// Do runs fn for key unless a run is already in flight, in which case it waits for that
// run instead. joined reports whether this caller attached to a run started by another.
func (c *Coalescer) Do(ctx context.Context, key RequestKey, fn func() (*RankedResult, error)) (res *RankedResult, joined bool, err error) {
	c.mu.Lock()
	c.waiters[key]++
	c.mu.Unlock()
	defer c.leave(key)

	// singleflight runs this closure only for the caller that starts the flight.
	var led atomic.Bool
	ch := c.group.DoChan(flightKey(key), func() (any, error) {
		led.Store(true)
		c.setRunning(key, true)
		defer c.setRunning(key, false)
		return fn()
	})

	select {
	case r := <-ch:
		joined = !led.Load()
		if joined {
			coalescedWaiters.Inc()
		}
		if r.Err != nil {
			return nil, joined, r.Err
		}
		out, ok := r.Val.(*RankedResult)
		if !ok {
			return nil, joined, fmt.Errorf("unexpected type from ranking run: got %T", r.Val)
		}
		return out, joined, nil
	case <-ctx.Done():
		return nil, !led.Load(), ctx.Err()
	}
}

// State reports whether a run is in flight for key.
func (c *Coalescer) State(key RequestKey) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running[key] {
		return StateInFlight
	}
	return StateIdle
}

// Waiters returns how many callers are currently waiting on key.
func (c *Coalescer) Waiters(key RequestKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[key]
}

func (c *Coalescer) setRunning(key RequestKey, running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if running {
		c.running[key] = true
		return
	}
	delete(c.running, key)
}

func (c *Coalescer) leave(key RequestKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[key]--
	if c.waiters[key] <= 0 {
		delete(c.waiters, key)
	}
}

func flightKey(key RequestKey) string {
	return key.Source + "\x00" + key.Target
}
