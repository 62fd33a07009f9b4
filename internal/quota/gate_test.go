package quota

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the gate sleeps or the test says so
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	grants []time.Time
	denied int
	waits  int
}

func (r *recorder) ObserveGrant(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = append(r.grants, at)
}

func (r *recorder) ObserveDenied() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied++
}

func (r *recorder) ObserveWait(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits++
}

func TestGate_SixthCallWaitsForOldestSlot(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig(5, 25)
	gate := NewGate(cfg, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	start := clock.Now()
	for i := 0; i < 5; i++ {
		ok, err := gate.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, ok, "call %d should be admitted", i+1)
		clock.Advance(100 * time.Millisecond)
	}
	assert.Empty(t, clock.sleeps, "first five calls must not wait")

	ok, err := gate.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, clock.sleeps, 1)
	// now = start+500ms; oldest ages out at start+60s
	assert.Equal(t, 60*time.Second-500*time.Millisecond+cfg.Margin, clock.sleeps[0])
	assert.True(t, clock.Now().Sub(start) > time.Minute)

	snap := gate.Snapshot()
	// the sleep also aged out the 2nd and 3rd slots
	assert.Equal(t, 3, snap.PerMinuteUsed)
	assert.Equal(t, 6, snap.DailyUsed)
}

func TestGate_DailyLimitReturnsFalseWithoutWaiting(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	gate := NewGate(DefaultConfig(5, 25), WithClock(clock.Now, clock.Sleep), WithObserver(rec))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		ok, err := gate.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	sleepsBefore := len(clock.sleeps)
	ok, err := gate.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "daily budget exhausted")
	assert.Equal(t, sleepsBefore, len(clock.sleeps), "never blocks on the daily limit")
	assert.Equal(t, 1, rec.denied)
	assert.Len(t, rec.grants, 25)

	snap := gate.Snapshot()
	assert.Equal(t, 0, snap.DailyRemaining)
}

func TestGate_DailyWindowIsRolling(t *testing.T) {
	clock := newFakeClock()
	gate := NewGate(DefaultConfig(5, 5), WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	// reset is measured from construction, not from calendar midnight
	clock.Advance(20 * time.Hour)
	for i := 0; i < 5; i++ {
		ok, _ := gate.Acquire(ctx)
		require.True(t, ok)
	}
	ok, _ := gate.Acquire(ctx)
	require.False(t, ok)

	clock.Advance(3*time.Hour + 59*time.Minute)
	ok, _ = gate.Acquire(ctx)
	assert.False(t, ok, "window has not elapsed yet")

	clock.Advance(time.Minute)
	ok, _ = gate.Acquire(ctx)
	assert.True(t, ok, "24h after the last reset")
	assert.Equal(t, 1, gate.Snapshot().DailyUsed)
}

func TestNewGate_ClampsLimits(t *testing.T) {
	clock := newFakeClock()
	gate := NewGate(DefaultConfig(0, 10), WithClock(clock.Now, clock.Sleep))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := gate.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.Len(t, clock.sleeps, 1, "second call waits for the single per-minute slot")
	assert.Equal(t, 1, gate.Snapshot().PerMinuteLimit)

	denyAll := NewGate(DefaultConfig(5, -1), WithClock(clock.Now, clock.Sleep))
	ok, err := denyAll.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, denyAll.Snapshot().DailyRemaining)
}

func TestGate_ContextCancelledWhileWaiting(t *testing.T) {
	clock := newFakeClock()
	gate := NewGate(DefaultConfig(1, 10), WithClock(clock.Now, clock.Sleep))

	ok, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = gate.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestGate_ConcurrentCallersNeverExceedWindow(t *testing.T) {
	cfg := Config{
		PerMinute:   3,
		PerDay:      8,
		Window:      80 * time.Millisecond,
		DailyWindow: time.Hour,
		Margin:      5 * time.Millisecond,
	}
	rec := &recorder{}
	gate := NewGate(cfg, WithObserver(rec))

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, refused := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := gate.Acquire(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				admitted++
			} else {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, admitted)
	assert.Equal(t, 4, refused)

	grants := append([]time.Time(nil), rec.grants...)
	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
	for i := cfg.PerMinute; i < len(grants); i++ {
		assert.GreaterOrEqual(t, grants[i].Sub(grants[i-cfg.PerMinute]), cfg.Window,
			"grant %d shares a window with grant %d", i, i-cfg.PerMinute)
	}
}
