package quota

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wonny/aegis-signal/pkg/logger"
)

// ErrExhausted is what upstream clients return after Acquire denies a call
var ErrExhausted = errors.New("upstream daily quota exhausted")

// Config defines the dual window limits
type Config struct {
	PerMinute   int
	PerDay      int
	Window      time.Duration // per-minute window, 60s
	DailyWindow time.Duration // rolling daily window, 24h from last reset
	Margin      time.Duration // added to computed waits so the oldest slot has surely aged out
}

// DefaultConfig returns 60s / 24h windows with a 250ms margin
func DefaultConfig(perMinute, perDay int) Config {
	return Config{
		PerMinute:   perMinute,
		PerDay:      perDay,
		Window:      time.Minute,
		DailyWindow: 24 * time.Hour,
		Margin:      250 * time.Millisecond,
	}
}

// Observer receives gate decisions (metrics)
type Observer interface {
	ObserveGrant(at time.Time)
	ObserveDenied()
	ObserveWait(d time.Duration)
}

// Gate admits calls to the shared upstream API under a per-minute sliding
// window and a rolling daily budget. All counter access goes through mu.
// ⭐ SSOT: 업스트림 쿼터는 이 게이트에서만 관리
type Gate struct {
	cfg Config

	mu         sync.Mutex
	timestamps []time.Time // ascending, within Window
	dailyCount int
	dailyStart time.Time

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *logger.Logger
	observer Observer
}

// Option configures a Gate
type Option func(*Gate)

// WithClock replaces the time source and the sleeper (tests)
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) {
		g.now = now
		g.sleep = sleep
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(g *Gate) {
		g.logger = log.WithComponent("quota")
	}
}

// WithObserver sets the decision observer
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// NewGate creates a gate; the daily window starts now.
// PerMinute is raised to at least 1; PerDay below 0 is treated as 0 (always deny).
func NewGate(cfg Config, opts ...Option) *Gate {
	if cfg.PerMinute < 1 {
		cfg.PerMinute = 1
	}
	if cfg.PerDay < 0 {
		cfg.PerDay = 0
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.DailyWindow <= 0 {
		cfg.DailyWindow = 24 * time.Hour
	}

	g := &Gate{
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepContext,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.dailyStart = g.now()
	return g
}

// Acquire returns true when the caller may call upstream and false when the
// daily budget is spent (use a fallback source). It suspends while the
// per-minute window is full. An error is returned only if ctx ends while waiting.
func (g *Gate) Acquire(ctx context.Context) (bool, error) {
	for {
		granted, denied, wait := g.try()
		if denied {
			if g.observer != nil {
				g.observer.ObserveDenied()
			}
			return false, nil
		}
		if granted {
			return true, nil
		}

		g.logger.WithField("wait_ms", wait.Milliseconds()).Debug("per-minute window full, waiting")
		if g.observer != nil {
			g.observer.ObserveWait(wait)
		}

		if err := g.sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

// try runs one admission check under the lock
func (g *Gate) try() (granted, denied bool, wait time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollDaily(now)
	g.prune(now)

	if g.dailyCount >= g.cfg.PerDay {
		return false, true, 0
	}

	if len(g.timestamps) < g.cfg.PerMinute {
		g.timestamps = append(g.timestamps, now)
		g.dailyCount++
		if g.observer != nil {
			g.observer.ObserveGrant(now)
		}
		return true, false, 0
	}

	wait = g.timestamps[0].Add(g.cfg.Window).Sub(now) + g.cfg.Margin
	if wait < g.cfg.Margin {
		wait = g.cfg.Margin
	}
	return false, false, wait
}

// prune drops timestamps at least Window old
func (g *Gate) prune(now time.Time) {
	cutoff := 0
	for cutoff < len(g.timestamps) && now.Sub(g.timestamps[cutoff]) >= g.cfg.Window {
		cutoff++
	}
	if cutoff > 0 {
		g.timestamps = append(g.timestamps[:0], g.timestamps[cutoff:]...)
	}
}

// rollDaily resets the daily count once DailyWindow has elapsed since the last reset
func (g *Gate) rollDaily(now time.Time) {
	if now.Sub(g.dailyStart) >= g.cfg.DailyWindow {
		g.logger.WithField("previous_count", g.dailyCount).Info("daily quota window reset")
		g.dailyCount = 0
		g.dailyStart = now
	}
}

// Snapshot is a point-in-time view of the gate
type Snapshot struct {
	PerMinuteUsed  int       `json:"per_minute_used"`
	PerMinuteLimit int       `json:"per_minute_limit"`
	DailyUsed      int       `json:"daily_used"`
	DailyLimit     int       `json:"daily_limit"`
	DailyRemaining int       `json:"daily_remaining"`
	DailyResetsAt  time.Time `json:"daily_resets_at"`
}

// Snapshot returns current usage
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollDaily(now)
	g.prune(now)

	return Snapshot{
		PerMinuteUsed:  len(g.timestamps),
		PerMinuteLimit: g.cfg.PerMinute,
		DailyUsed:      g.dailyCount,
		DailyLimit:     g.cfg.PerDay,
		DailyRemaining: g.cfg.PerDay - g.dailyCount,
		DailyResetsAt:  g.dailyStart.Add(g.cfg.DailyWindow),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
