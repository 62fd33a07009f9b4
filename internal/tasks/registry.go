package tasks

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis-signal/internal/contracts"
)

var (
	// ErrUnknownTask is returned when a requested task is not declared
	ErrUnknownTask = errors.New("unknown task")
	// ErrTaskDisabled is returned when a disabled task is explicitly requested
	ErrTaskDisabled = errors.New("task disabled by configuration")
	// ErrInvalidRegistry is returned for malformed declarations
	ErrInvalidRegistry = errors.New("invalid task registry")
)

// Constructor builds a fresh task instance for one run of one symbol
type Constructor func(symbol string) contracts.Task

// Spec declares one task: name, constructor, prerequisites, enabled flag, timeout.
// Timeout only applies to dependent tasks; independent ones share the batch deadline.
type Spec struct {
	Name     string
	New      Constructor
	Requires []string
	Enabled  bool
	Timeout  time.Duration
}

// IsDependent reports whether the task has prerequisites
func (s Spec) IsDependent() bool {
	return len(s.Requires) > 0
}

// Registry is the explicit table of available tasks in declaration order.
// Prerequisites must be declared before their dependents, so declaration
// order is always a valid execution order.
// ⭐ SSOT: 태스크 목록/의존성은 이 테이블에서만 선언
type Registry struct {
	mu    sync.RWMutex
	specs []Spec
	index map[string]int
}

// NewRegistry validates and stores the declarations
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(specs))}

	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: task #%d has no name", ErrInvalidRegistry, i)
		}
		if spec.New == nil {
			return nil, fmt.Errorf("%w: task %q has no constructor", ErrInvalidRegistry, spec.Name)
		}
		if _, dup := r.index[spec.Name]; dup {
			return nil, fmt.Errorf("%w: task %q declared twice", ErrInvalidRegistry, spec.Name)
		}
		for _, req := range spec.Requires {
			if _, ok := r.index[req]; !ok {
				return nil, fmt.Errorf("%w: task %q requires %q which is not declared before it", ErrInvalidRegistry, spec.Name, req)
			}
		}

		spec.Requires = append([]string(nil), spec.Requires...)
		r.index[spec.Name] = len(r.specs)
		r.specs = append(r.specs, spec)
	}

	return r, nil
}

// Specs returns a copy of all declarations in order
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Spec(nil), r.specs...)
}

// Lookup returns one declaration
func (r *Registry) Lookup(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return Spec{}, false
	}
	return r.specs[i], true
}

// SetEnabled toggles a task (configuration overrides)
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	r.specs[i].Enabled = enabled
	return nil
}

// SetTimeout overrides a task timeout
func (r *Registry) SetTimeout(name string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	r.specs[i].Timeout = timeout
	return nil
}
