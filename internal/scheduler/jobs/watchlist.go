package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-signal/internal/brain"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// Analyzer runs one analysis; *brain.Orchestrator satisfies it
type Analyzer interface {
	Run(ctx context.Context, config brain.RunConfig) (*brain.RunResult, error)
}

// WatchlistJob analyzes every watchlist symbol, one at a time so that the
// runs share the upstream quota instead of racing for it.
type WatchlistJob struct {
	engine   Analyzer
	symbols  []string
	schedule string
	logger   *logger.Logger
}

// NewWatchlistJob creates a new watchlist job
func NewWatchlistJob(engine Analyzer, symbols []string, schedule string, log *logger.Logger) *WatchlistJob {
	return &WatchlistJob{
		engine:   engine,
		symbols:  append([]string(nil), symbols...),
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *WatchlistJob) Name() string {
	return "watchlist_analysis"
}

// Schedule returns the cron schedule
func (j *WatchlistJob) Schedule() string {
	return j.schedule
}

// Run analyzes each symbol. It fails only when no symbol produced a
// persistable contract; a retry would otherwise re-spend quota on the
// symbols that already succeeded.
func (j *WatchlistJob) Run(ctx context.Context) error {
	if len(j.symbols) == 0 {
		j.logger.Warn("Watchlist is empty, nothing to analyze")
		return nil
	}

	succeeded := 0
	for _, symbol := range j.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := j.engine.Run(ctx, brain.RunConfig{Symbol: symbol})
		log := j.logger.WithField("symbol", symbol)
		switch {
		case err != nil:
			log.WithError(err).Warn("Watchlist analysis failed")
		case !res.Persistable:
			log.WithField("validation_errors", res.ValidationErrors).Warn("Watchlist contract not persistable")
		default:
			succeeded++
			log.WithField("recommendation", res.Contract.Recommendation).Info("Watchlist analysis completed")
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"symbols":   len(j.symbols),
		"succeeded": succeeded,
	}).Info("Watchlist pass finished")

	if succeeded == 0 {
		return fmt.Errorf("watchlist: none of %d symbols produced a contract", len(j.symbols))
	}
	return nil
}
