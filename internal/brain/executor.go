package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/tasks"
)

// partition splits specs into tasks without and with prerequisites, keeping order
func partition(specs []tasks.Spec) (independent, dependent []tasks.Spec) {
	for _, s := range specs {
		if s.IsDependent() {
			dependent = append(dependent, s)
		} else {
			independent = append(independent, s)
		}
	}
	return independent, dependent
}

// runIndependent launches every independent task at once under one shared
// deadline. Missing the deadline fails the whole batch; individual errors
// become failed results.
func (o *Orchestrator) runIndependent(ctx context.Context, symbol string, specs []tasks.Spec, progress *progress) (map[string]*contracts.TaskResult, error) {
	results := make(map[string]*contracts.TaskResult, len(specs)+2)
	if len(specs) == 0 {
		return results, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
	defer cancel()

	var mu sync.Mutex
	var g errgroup.Group

	for i, spec := range specs {
		spec := spec
		percent := 5 + 40*i/len(specs)
		progress.emit(contracts.StageTaskStart, percent, spec.Name)

		g.Go(func() error {
			res := o.runTask(batchCtx, spec, contracts.TaskInput{Symbol: symbol})
			mu.Lock()
			results[spec.Name] = res
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-batchCtx.Done():
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("independent batch: %w", ctx.Err())
	}
	if errors.Is(batchCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s (%d task(s))", ErrBatchTimeout, o.cfg.BatchTimeout, len(specs))
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]*contracts.TaskResult, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out, nil
}

// runDependents runs dependents in waves: a task runs once every prerequisite
// has a result (success or failure). Each task has its own deadline and a
// timeout becomes a failed result. results is extended in place.
func (o *Orchestrator) runDependents(ctx context.Context, symbol string, specs []tasks.Spec, results map[string]*contracts.TaskResult) {
	pending := append([]tasks.Spec(nil), specs...)

	for len(pending) > 0 {
		var ready, waiting []tasks.Spec
		for _, spec := range pending {
			if prerequisitesDone(spec, results) {
				ready = append(ready, spec)
			} else {
				waiting = append(waiting, spec)
			}
		}

		// Resolve guarantees closure; this only trips on a malformed call
		if len(ready) == 0 {
			for _, spec := range waiting {
				results[spec.Name] = contracts.NewTaskFailure(spec.Name,
					fmt.Errorf("prerequisites %v never produced a result", spec.Requires), 0, o.now())
			}
			return
		}

		wave := make([]*contracts.TaskResult, len(ready))
		var wg sync.WaitGroup
		for i, spec := range ready {
			in := contracts.TaskInput{
				Symbol:        symbol,
				Prerequisites: prerequisiteData(spec, results),
			}
			wg.Add(1)
			go func(i int, spec tasks.Spec) {
				defer wg.Done()
				wave[i] = o.runWithTimeout(ctx, spec, in, o.timeoutFor(spec))
			}(i, spec)
		}
		wg.Wait()

		for i, spec := range ready {
			results[spec.Name] = wave[i]
		}
		pending = waiting
	}
}

func (o *Orchestrator) timeoutFor(spec tasks.Spec) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout
	}
	return o.cfg.DependentTimeout
}

func prerequisitesDone(spec tasks.Spec, results map[string]*contracts.TaskResult) bool {
	for _, req := range spec.Requires {
		if _, ok := results[req]; !ok {
			return false
		}
	}
	return true
}

// prerequisiteData injects outputs of successful prerequisites only
func prerequisiteData(spec tasks.Spec, results map[string]*contracts.TaskResult) map[string]contracts.TaskData {
	out := make(map[string]contracts.TaskData, len(spec.Requires))
	for _, req := range spec.Requires {
		if res, ok := results[req]; ok && res.Success {
			out[req] = res.Data
		}
	}
	return out
}

// runWithTimeout runs a task under its own deadline
func (o *Orchestrator) runWithTimeout(ctx context.Context, spec tasks.Spec, in contracts.TaskInput, timeout time.Duration) *contracts.TaskResult {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := o.now()
	done := make(chan *contracts.TaskResult, 1)
	go func() {
		done <- o.runTask(taskCtx, spec, in)
	}()

	select {
	case res := <-done:
		// deadline hit while the task was unwinding: still a timeout
		if !res.Success && ctx.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return o.timedOut(spec, timeout, start, false)
		}
		return res
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			res := contracts.NewTaskFailure(spec.Name, ctx.Err(), o.now().Sub(start), o.now())
			o.observeTask(res)
			return res
		}
		return o.timedOut(spec, timeout, start, true)
	}
}

func (o *Orchestrator) timedOut(spec tasks.Spec, timeout time.Duration, start time.Time, observe bool) *contracts.TaskResult {
	res := contracts.NewTaskFailure(spec.Name, fmt.Errorf("timeout after %s", timeout), o.now().Sub(start), o.now())
	if observe {
		o.observeTask(res)
	}
	o.logger.WithFields(map[string]interface{}{
		"task":    spec.Name,
		"timeout": timeout,
	}).Warn("Dependent task timed out")
	return res
}

// runTask builds a fresh task instance and runs fetch then analyze.
// Errors and panics become a failed result.
func (o *Orchestrator) runTask(ctx context.Context, spec tasks.Spec, in contracts.TaskInput) *contracts.TaskResult {
	start := o.now()
	data, err := execute(ctx, spec.New, in)
	duration := o.now().Sub(start)

	var res *contracts.TaskResult
	if err != nil {
		res = contracts.NewTaskFailure(spec.Name, err, duration, o.now())
		o.logger.WithFields(map[string]interface{}{
			"task":     spec.Name,
			"symbol":   in.Symbol,
			"duration": duration,
		}).WithError(err).Warn("Task failed")
	} else {
		res = contracts.NewTaskSuccess(spec.Name, data, duration, o.now())
		o.logger.WithFields(map[string]interface{}{
			"task":     spec.Name,
			"symbol":   in.Symbol,
			"duration": duration,
		}).Debug("Task completed")
	}

	o.observeTask(res)
	return res
}

// execute constructs the task under the same recover as fetch and analyze
func execute(ctx context.Context, newTask func(symbol string) contracts.Task, in contracts.TaskInput) (data contracts.TaskData, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("task panicked: %v", r)
		}
	}()

	task := newTask(in.Symbol)
	if task == nil {
		return nil, errors.New("task constructor returned nil")
	}

	raw, err := task.Fetch(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	data, err = task.Analyze(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return data, nil
}

func (o *Orchestrator) observeTask(res *contracts.TaskResult) {
	if o.c.Observer != nil {
		o.c.Observer.ObserveTask(res.TaskName, res.Success, res.Duration)
	}
}
