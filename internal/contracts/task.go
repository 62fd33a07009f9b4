package contracts

import (
	"strings"
	"time"
)

// TaskData is the structured analysis a task contributes to a run
type TaskData map[string]interface{}

// Float returns a numeric field; JSON numbers and ints are accepted
func (d TaskData) Float(key string) (float64, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// String returns a string field, lower-cased and trimmed
func (d TaskData) String(key string) string {
	s, _ := d[key].(string)
	return strings.ToLower(strings.TrimSpace(s))
}

// Bool returns a boolean field (false when absent)
func (d TaskData) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Well-known TaskData keys shared by tasks, diagnostics and the contract builder
const (
	KeyDirection    = "direction"     // bullish | neutral | bearish
	KeySource       = "source"        // data source name
	KeyFallbackUsed = "fallback_used" // true when the upstream quota was exhausted
)

// TaskResult is the outcome of one task in one run.
// success=false implies Data=nil; success=true implies Error="".
type TaskResult struct {
	Success   bool          `json:"success"`
	TaskName  string        `json:"task_name"`
	Data      TaskData      `json:"data"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewTaskSuccess builds a successful result
func NewTaskSuccess(name string, data TaskData, duration time.Duration, at time.Time) *TaskResult {
	if data == nil {
		data = TaskData{}
	}
	return &TaskResult{
		Success:   true,
		TaskName:  name,
		Data:      data,
		Duration:  duration,
		Timestamp: at,
	}
}

// NewTaskFailure builds a failed result; Data is always nil
func NewTaskFailure(name string, err error, duration time.Duration, at time.Time) *TaskResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &TaskResult{
		Success:   false,
		TaskName:  name,
		Error:     msg,
		Duration:  duration,
		Timestamp: at,
	}
}

// TaskInput is handed to a task's Fetch step.
// Prerequisites holds the data of successful prerequisite tasks only.
type TaskInput struct {
	Symbol        string
	Prerequisites map[string]TaskData
}
