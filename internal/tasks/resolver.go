package tasks

import "fmt"

// Resolve expands a request into the ordered task set to execute.
//
// With no names, every enabled task runs; tasks whose prerequisites are
// disabled are left out. With names, each must be declared and enabled,
// prerequisites are added transitively, and a disabled task anywhere in the
// closure is an input error. Output follows declaration order regardless of
// the order of names.
func (r *Registry) Resolve(names []string) ([]Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		return r.defaultSetLocked(), nil
	}

	needed := make(map[string]bool, len(r.specs))
	var visit func(name, requestedBy string) error
	visit = func(name, requestedBy string) error {
		if needed[name] {
			return nil
		}
		i, ok := r.index[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTask, name)
		}
		spec := r.specs[i]
		if !spec.Enabled {
			if requestedBy != "" {
				return fmt.Errorf("%w: %q (required by %q)", ErrTaskDisabled, name, requestedBy)
			}
			return fmt.Errorf("%w: %q", ErrTaskDisabled, name)
		}
		needed[name] = true
		for _, req := range spec.Requires {
			if err := visit(req, name); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range names {
		if err := visit(name, ""); err != nil {
			return nil, err
		}
	}

	out := make([]Spec, 0, len(needed))
	for _, spec := range r.specs {
		if needed[spec.Name] {
			out = append(out, spec)
		}
	}
	return out, nil
}

// defaultSetLocked returns enabled tasks whose prerequisites are all runnable
func (r *Registry) defaultSetLocked() []Spec {
	runnable := make(map[string]bool, len(r.specs))
	out := make([]Spec, 0, len(r.specs))

	for _, spec := range r.specs {
		if !spec.Enabled {
			continue
		}
		ok := true
		for _, req := range spec.Requires {
			if !runnable[req] {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		runnable[spec.Name] = true
		out = append(out, spec)
	}
	return out
}

// Names returns the names of specs
func Names(specs []Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}
