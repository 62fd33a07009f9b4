package brain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// progress emits lifecycle events for one run; a nil notifier is a no-op
type progress struct {
	notifier contracts.ProgressNotifier
	runID    string
	symbol   string
	now      func() time.Time
	last     int
}

func newProgress(n contracts.ProgressNotifier, runID, symbol string, now func() time.Time) *progress {
	return &progress{notifier: n, runID: runID, symbol: symbol, now: now}
}

func (p *progress) emit(stage contracts.Stage, percent int, message string) {
	p.last = percent
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(contracts.ProgressEvent{
		RunID:           p.runID,
		Stage:           stage,
		InstrumentID:    p.symbol,
		ProgressPercent: percent,
		Message:         message,
		Timestamp:       p.now(),
	})
}

// MultiNotifier fans events out to several notifiers
type MultiNotifier []contracts.ProgressNotifier

// Notify implements contracts.ProgressNotifier
func (m MultiNotifier) Notify(event contracts.ProgressEvent) {
	for _, n := range m {
		if n != nil {
			n.Notify(event)
		}
	}
}

// LogNotifier writes progress events to the logger
type LogNotifier struct {
	Logger *logger.Logger
}

// Notify implements contracts.ProgressNotifier
func (l LogNotifier) Notify(event contracts.ProgressEvent) {
	l.Logger.WithFields(map[string]interface{}{
		"run_id":   event.RunID,
		"stage":    event.Stage,
		"symbol":   event.InstrumentID,
		"progress": event.ProgressPercent,
	}).Info(event.Message)
}

// GenerateRunID creates a sortable, unique run ID
func GenerateRunID(at time.Time) string {
	return fmt.Sprintf("run_%s_%s", at.UTC().Format("20060102_150405"), uuid.NewString()[:8])
}
