package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/decision"
	"github.com/wonny/aegis-signal/internal/diagnostics"
	"github.com/wonny/aegis-signal/internal/tasks"
	"github.com/wonny/aegis-signal/pkg/logger"
)

var (
	// ErrBatchTimeout means the independent task group missed its shared deadline
	ErrBatchTimeout = errors.New("independent task batch timed out")
	// ErrSynthesisFailed means the synthesis step returned an error
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrStepTimeout means the synthesis step missed its deadline
	ErrStepTimeout = errors.New("step timed out")
	// ErrNoTasks means the resolved task set was empty
	ErrNoTasks = errors.New("no tasks to run")
)

// Config holds orchestrator deadlines
type Config struct {
	BatchTimeout     time.Duration // shared by all independent tasks
	DependentTimeout time.Duration // default per dependent task
	SynthesisTimeout time.Duration
}

// Observer receives engine measurements (metrics)
type Observer interface {
	ObserveTask(name string, success bool, d time.Duration)
	ObserveRun(outcome string, d time.Duration)
}

// Components are the collaborators injected at startup.
// Only Registry and Synthesizer are required.
type Components struct {
	Registry    *tasks.Registry
	Synthesizer contracts.Synthesizer
	Calibration contracts.CalibrationLookup
	Store       contracts.RunStore
	Publisher   contracts.ContractPublisher
	Notifier    contracts.ProgressNotifier
	Observer    Observer
	Logger      *logger.Logger
}

// Orchestrator runs one analysis per call: resolve, independent batch,
// dependents, synthesis, contract build + validation, persistence.
// It holds no per-run state and is safe for concurrent runs.
// ⭐ SSOT: 분석 실행 조율은 여기서만
type Orchestrator struct {
	c      Components
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
}

// RunConfig identifies one analysis request
type RunConfig struct {
	Symbol string
	Tasks  []string // empty = all enabled
	RunID  string   // generated when empty
}

// RunResult holds everything one run produced.
// Contract is only legitimate when Persistable is true.
type RunResult struct {
	RunID            string
	Symbol           string
	Success          bool
	Error            error
	CompletedStages  []contracts.Stage
	Results          map[string]*contracts.TaskResult
	Synthesis        *contracts.SynthesisOutput
	Diagnostics      *contracts.Diagnostics
	Contract         *contracts.SignalContract
	Persistable      bool
	ValidationErrors []string
	PersistError     error
	StartedAt        time.Time
	Duration         time.Duration
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(c Components, cfg Config) (*Orchestrator, error) {
	if c.Registry == nil {
		return nil, fmt.Errorf("orchestrator requires a task registry")
	}
	if c.Synthesizer == nil {
		return nil, fmt.Errorf("orchestrator requires a synthesizer")
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 90 * time.Second
	}
	if cfg.DependentTimeout <= 0 {
		cfg.DependentTimeout = 45 * time.Second
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = 90 * time.Second
	}

	return &Orchestrator{
		c:      c,
		cfg:    cfg,
		logger: c.Logger.WithComponent("brain"),
		now:    time.Now,
	}, nil
}

// Registry exposes the task table (listing, overrides)
func (o *Orchestrator) Registry() *tasks.Registry {
	return o.c.Registry
}

// Run executes one analysis. Individual task failures never fail the run;
// an input error, a batch timeout, or a synthesis failure does.
func (o *Orchestrator) Run(ctx context.Context, config RunConfig) (*RunResult, error) {
	if config.RunID == "" {
		config.RunID = GenerateRunID(o.now())
	}

	result := &RunResult{
		RunID:           config.RunID,
		Symbol:          config.Symbol,
		StartedAt:       o.now(),
		CompletedStages: make([]contracts.Stage, 0, 6),
	}
	progress := newProgress(o.c.Notifier, config.RunID, config.Symbol, o.now)
	log := o.logger.WithFields(map[string]interface{}{
		"run_id": config.RunID,
		"symbol": config.Symbol,
	})

	fail := func(err error) (*RunResult, error) {
		result.Error = err
		result.Duration = o.now().Sub(result.StartedAt)
		progress.emit(contracts.StageError, progress.last, err.Error())
		log.WithError(err).Error("Analysis run failed")
		o.observeRun("failed", result.Duration)
		return result, err
	}

	progress.emit(contracts.StageStart, 0, "analysis started")
	log.WithField("tasks", config.Tasks).Info("Starting analysis run")

	specs, err := o.c.Registry.Resolve(config.Tasks)
	if err != nil {
		return fail(fmt.Errorf("resolve tasks: %w", err))
	}
	if len(specs) == 0 {
		return fail(ErrNoTasks)
	}

	independent, dependent := partition(specs)
	result.CompletedStages = append(result.CompletedStages, contracts.StageStart)

	// 1. 독립 태스크: 공유 데드라인 하나
	results, err := o.runIndependent(ctx, config.Symbol, independent, progress)
	if err != nil {
		return fail(err)
	}
	result.Results = results
	result.CompletedStages = append(result.CompletedStages, contracts.StageTaskStart)

	// 2. 의존 태스크: 선행 결과 주입, 태스크별 데드라인
	if len(dependent) > 0 {
		progress.emit(contracts.StageDependents, 50, fmt.Sprintf("running %d dependent task(s)", len(dependent)))
		o.runDependents(ctx, config.Symbol, dependent, results)
		result.CompletedStages = append(result.CompletedStages, contracts.StageDependents)
	}

	// 3. 합성: 실패는 실행 전체 실패
	progress.emit(contracts.StageSynthesis, 65, "synthesizing")
	synthesis, err := o.synthesize(ctx, config.Symbol, results)
	if err != nil {
		return fail(err)
	}
	result.Synthesis = synthesis
	result.CompletedStages = append(result.CompletedStages, contracts.StageSynthesis)

	// 4. 계약 생성 + 검증 (순수 함수)
	diag := diagnostics.Summarize(results, o.now())
	result.Diagnostics = &diag

	confidence := 0.0
	if synthesis.Confidence != nil {
		confidence = *synthesis.Confidence
	}
	contract := decision.Build(decision.Input{
		Symbol:      config.Symbol,
		RunID:       config.RunID,
		Analysis:    synthesis,
		Results:     results,
		Diagnostics: diag,
		HitRates:    o.lookupHitRates(ctx, confidence),
		AsOf:        o.now(),
	})
	validation := decision.Validate(contract)
	result.Contract = contract
	result.Persistable = validation.Valid
	result.ValidationErrors = validation.Messages()
	if !validation.Valid {
		log.WithField("errors", result.ValidationErrors).Warn("Signal contract failed validation; not persistable")
	}

	// 5. 저장/발행
	progress.emit(contracts.StagePersistence, 85, "persisting")
	result.Duration = o.now().Sub(result.StartedAt)
	result.PersistError = o.persist(ctx, result)
	result.CompletedStages = append(result.CompletedStages, contracts.StagePersistence)

	result.Success = true
	result.Duration = o.now().Sub(result.StartedAt)
	result.CompletedStages = append(result.CompletedStages, contracts.StageComplete)
	progress.emit(contracts.StageComplete, 100, fmt.Sprintf("%s %s", config.Symbol, contract.Recommendation))

	log.WithFields(map[string]interface{}{
		"recommendation": contract.Recommendation,
		"persistable":    result.Persistable,
		"succeeded":      countSuccess(results),
		"tasks":          len(results),
		"duration":       result.Duration,
	}).Info("Analysis run completed")
	o.observeRun("completed", result.Duration)

	return result, nil
}

// synthesize calls the synthesis step under its own deadline
func (o *Orchestrator) synthesize(ctx context.Context, symbol string, results map[string]*contracts.TaskResult) (*contracts.SynthesisOutput, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
	defer cancel()

	type outcome struct {
		out *contracts.SynthesisOutput
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("synthesizer panicked: %v", r)}
			}
		}()
		out, err := o.c.Synthesizer.Synthesize(stepCtx, symbol, results)
		done <- outcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && stepCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("synthesis: %w after %s", ErrStepTimeout, o.cfg.SynthesisTimeout)
			}
			return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, res.err)
		}
		if res.out == nil {
			return nil, fmt.Errorf("%w: empty output", ErrSynthesisFailed)
		}
		return res.out, nil
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, ctx.Err())
		}
		return nil, fmt.Errorf("synthesis: %w after %s", ErrStepTimeout, o.cfg.SynthesisTimeout)
	}
}

// lookupHitRates consults calibration per horizon; failures degrade to "no samples"
func (o *Orchestrator) lookupHitRates(ctx context.Context, confidence float64) map[contracts.Horizon]contracts.CalibrationStat {
	out := make(map[contracts.Horizon]contracts.CalibrationStat, 3)
	if o.c.Calibration == nil {
		return out
	}

	for _, h := range contracts.AllHorizons() {
		stat, err := o.c.Calibration.HitRate(ctx, h, confidence)
		if err != nil {
			o.logger.WithError(err).WithField("horizon", h).Warn("Calibration lookup failed")
			continue
		}
		out[h] = stat
	}
	return out
}

// persist saves the run and publishes a persistable contract.
// Persistence problems are reported on the result, not as run failures.
func (o *Orchestrator) persist(ctx context.Context, result *RunResult) error {
	var errs []error

	if o.c.Store != nil {
		record := &contracts.AnalysisRecord{
			RunID:            result.RunID,
			Symbol:           result.Symbol,
			StartedAt:        result.StartedAt,
			Duration:         result.Duration,
			Results:          result.Results,
			Synthesis:        result.Synthesis,
			Persistable:      result.Persistable,
			ValidationErrors: result.ValidationErrors,
		}
		if result.Persistable {
			record.Contract = result.Contract
		}
		if err := o.c.Store.SaveRun(ctx, record); err != nil {
			o.logger.WithError(err).WithField("run_id", result.RunID).Error("Failed to save analysis run")
			errs = append(errs, fmt.Errorf("save run: %w", err))
		}
	}

	if o.c.Publisher != nil && result.Persistable {
		if err := o.c.Publisher.Publish(ctx, result.Contract); err != nil {
			o.logger.WithError(err).WithField("run_id", result.RunID).Error("Failed to publish signal contract")
			errs = append(errs, fmt.Errorf("publish contract: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (o *Orchestrator) observeRun(outcome string, d time.Duration) {
	if o.c.Observer != nil {
		o.c.Observer.ObserveRun(outcome, d)
	}
}

func countSuccess(results map[string]*contracts.TaskResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}
