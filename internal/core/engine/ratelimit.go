package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

const (
	defaultRateCapacity = 10
	defaultRatePeriod   = time.Minute
)

// RateLimiter grants execution slots per named resource under a sliding
// window: no more than capacity actions may start within any trailing period,
// and consecutive starts are spaced at least period/capacity apart.
//
// Slots are reserved at a virtual scheduled time while holding a short
// per-resource lock; the wait happens outside every lock so only the resource
// being scheduled is serialized. Slots are granted in first-asked order.
type RateLimiter struct {
	// Clock and Sleep are injectable for deterministic tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	resources map[string]*rateResource
}

type rateResource struct {
	mu       sync.Mutex
	capacity int
	period   time.Duration

	// slots holds scheduled start times, ascending. Entries older than one
	// period behind now are pruned; the slice therefore stays bounded.
	slots         []time.Time
	lastScheduled time.Time
}

// NewRateLimiter returns a limiter with real time sources.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{resources: make(map[string]*rateResource)}
}

// Configure sets the admission limit for a resource. It is idempotent and
// sanitizes invalid input: maxRequests <= 0 becomes 10, period <= 0 becomes
// one minute. Already-reserved slots are unaffected.
func (l *RateLimiter) Configure(resource string, maxRequests int, period time.Duration) {
	if maxRequests <= 0 {
		maxRequests = defaultRateCapacity
	}
	if period <= 0 {
		period = defaultRatePeriod
	}

	res := l.resourceFor(resource)
	res.mu.Lock()
	res.capacity = maxRequests
	res.period = period
	res.mu.Unlock()
}

// Do reserves the next eligible slot for the resource, waits until it
// arrives, then runs fn. Overload is absorbed as delay, never an error.
//
// Cancellation during the wait aborts before fn runs and releases the
// reserved slot: a cancelled-before-start action does not consume capacity.
// Errors from fn propagate unchanged.
func (l *RateLimiter) Do(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := l.resourceFor(resource)
	slot := res.reserve(l.now())

	if wait := slot.Sub(l.now()); wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			res.release(slot)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		res.release(slot)
		return err
	}

	err := fn(ctx)
	res.prune(l.now())
	return err
}

// Snapshot reports the current window occupancy for every configured
// resource, for the admin surface.
func (l *RateLimiter) Snapshot() []core.RateLimitState {
	l.mu.Lock()
	names := make([]string, 0, len(l.resources))
	for name := range l.resources {
		names = append(names, name)
	}
	l.mu.Unlock()

	now := l.now()
	states := make([]core.RateLimitState, 0, len(names))
	for _, name := range names {
		res := l.resourceFor(name)
		res.mu.Lock()
		res.pruneLocked(now)
		state := core.RateLimitState{
			Resource:    name,
			Capacity:    res.capacity,
			Period:      res.period,
			ReservedNow: len(res.slots),
			UpdatedAt:   now,
		}
		if !res.lastScheduled.IsZero() {
			last := res.lastScheduled
			state.LastGrantAt = &last
		}
		res.mu.Unlock()
		states = append(states, state)
	}
	return states
}

// Reset clears reserved slots for a resource without touching its limits.
func (l *RateLimiter) Reset(resource string) {
	res := l.resourceFor(resource)
	res.mu.Lock()
	res.slots = nil
	res.lastScheduled = time.Time{}
	res.mu.Unlock()
}

func (l *RateLimiter) resourceFor(name string) *rateResource {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resources == nil {
		l.resources = make(map[string]*rateResource)
	}
	res, ok := l.resources[name]
	if !ok {
		res = &rateResource{capacity: defaultRateCapacity, period: defaultRatePeriod}
		l.resources[name] = res
	}
	return res
}

// reserve computes and records the next eligible slot:
// max(now, lastScheduled+minInterval, oldestInFullWindow+period).
func (r *rateResource) reserve(now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(now)

	slot := now
	minInterval := r.period / time.Duration(r.capacity)
	if !r.lastScheduled.IsZero() {
		if next := r.lastScheduled.Add(minInterval); next.After(slot) {
			slot = next
		}
	}
	if len(r.slots) >= r.capacity {
		if next := r.slots[len(r.slots)-r.capacity].Add(r.period); next.After(slot) {
			slot = next
		}
	}

	r.slots = append(r.slots, slot)
	r.lastScheduled = slot
	return slot
}

// release removes one reservation at the given slot time. lastScheduled is
// left alone so already-granted spacing stays valid.
func (r *rateResource) release(slot time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.slots) - 1; i >= 0; i-- {
		if r.slots[i].Equal(slot) {
			r.slots = append(r.slots[:i], r.slots[i+1:]...)
			return
		}
	}
}

func (r *rateResource) prune(now time.Time) {
	r.mu.Lock()
	r.pruneLocked(now)
	r.mu.Unlock()
}

func (r *rateResource) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.period)
	idx := 0
	for idx < len(r.slots) && !r.slots[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		r.slots = append(r.slots[:0], r.slots[idx:]...)
	}
}

func (l *RateLimiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

func (l *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if l != nil && l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
