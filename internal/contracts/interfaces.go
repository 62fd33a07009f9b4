package contracts

import "context"

// Task is one data-gathering unit. A fresh instance is built per run per instrument.
// ⭐ SSOT: 태스크 인터페이스 (fetch → analyze)
type Task interface {
	Name() string
	Fetch(ctx context.Context, in TaskInput) (interface{}, error)
	Analyze(ctx context.Context, raw interface{}) (TaskData, error)
}

// Synthesizer turns a run's task results into scenarios and a decision card
type Synthesizer interface {
	Synthesize(ctx context.Context, symbol string, results map[string]*TaskResult) (*SynthesisOutput, error)
}

// CalibrationLookup returns the empirical hit rate for a horizon and confidence
type CalibrationLookup interface {
	HitRate(ctx context.Context, horizon Horizon, confidence float64) (CalibrationStat, error)
}

// ProgressNotifier receives lifecycle events. Implementations must not block.
type ProgressNotifier interface {
	Notify(event ProgressEvent)
}

// RunStore persists a finished run
type RunStore interface {
	SaveRun(ctx context.Context, record *AnalysisRecord) error
}

// ContractPublisher fans a persistable contract out to downstream consumers
type ContractPublisher interface {
	Publish(ctx context.Context, contract *SignalContract) error
}
