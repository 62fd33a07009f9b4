package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/brain"
	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/pkg/logger"
)

type scriptedEngine struct {
	outcomes map[string]*brain.RunResult
	errs     map[string]error
	seen     []string
}

func (e *scriptedEngine) Run(_ context.Context, cfg brain.RunConfig) (*brain.RunResult, error) {
	e.seen = append(e.seen, cfg.Symbol)
	if err := e.errs[cfg.Symbol]; err != nil {
		return &brain.RunResult{Error: err}, err
	}
	return e.outcomes[cfg.Symbol], nil
}

func persisted() *brain.RunResult {
	return &brain.RunResult{Persistable: true, Contract: &contracts.SignalContract{Recommendation: "HOLD"}}
}

func TestWatchlistJob(t *testing.T) {
	tests := []struct {
		name    string
		engine  *scriptedEngine
		wantErr bool
	}{
		{
			name: "partial failure still succeeds",
			engine: &scriptedEngine{
				outcomes: map[string]*brain.RunResult{"AAPL": persisted(), "MSFT": {Persistable: false}},
				errs:     map[string]error{"NVDA": errors.New("batch timeout")},
			},
		},
		{
			name: "nothing persisted fails",
			engine: &scriptedEngine{
				outcomes: map[string]*brain.RunResult{"AAPL": {Persistable: false}, "MSFT": {Persistable: false}},
				errs:     map[string]error{"NVDA": errors.New("batch timeout")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWatchlistJob(tt.engine, []string{"AAPL", "MSFT", "NVDA"}, "@daily", logger.Nop())

			err := job.Run(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, tt.engine.seen, "runs sequentially in watchlist order")
		})
	}
}

func TestWatchlistJob_EmptyAndCancelled(t *testing.T) {
	engine := &scriptedEngine{}
	require.NoError(t, NewWatchlistJob(engine, nil, "@daily", logger.Nop()).Run(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWatchlistJob(engine, []string{"AAPL"}, "@daily", logger.Nop()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.seen)
}

type fakeCache struct{ purged int }

func (c *fakeCache) PurgeExpired() int {
	c.purged++
	return 3
}

func TestCacheCleanupJob(t *testing.T) {
	c := &fakeCache{}
	job := NewCacheCleanupJob(c, logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, c.purged)
	assert.Equal(t, "cache_cleanup", job.Name())
}
