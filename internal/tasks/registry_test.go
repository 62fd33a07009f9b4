package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/contracts"
)

type stubTask struct{ name string }

func (s stubTask) Name() string { return s.name }
func (s stubTask) Fetch(ctx context.Context, in contracts.TaskInput) (interface{}, error) {
	return nil, nil
}
func (s stubTask) Analyze(ctx context.Context, raw interface{}) (contracts.TaskData, error) {
	return contracts.TaskData{}, nil
}

func stubSpec(name string, enabled bool, requires ...string) Spec {
	return Spec{
		Name:     name,
		New:      func(string) contracts.Task { return stubTask{name: name} },
		Requires: requires,
		Enabled:  enabled,
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		stubSpec("market", true),
		stubSpec("fundamentals", true),
		stubSpec("technical", true),
		stubSpec("macro", false),
		stubSpec("news", true),
		stubSpec("sentiment", true, "news", "market"),
	)
	require.NoError(t, err)
	return r
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
	}{
		{"empty name", []Spec{stubSpec("", true)}},
		{"missing constructor", []Spec{{Name: "news", Enabled: true}}},
		{"duplicate", []Spec{stubSpec("news", true), stubSpec("news", true)}},
		{"unknown prerequisite", []Spec{stubSpec("sentiment", true, "news")}},
		{"prerequisite declared later", []Spec{stubSpec("sentiment", true, "news"), stubSpec("news", true)}},
		{"self reference", []Spec{stubSpec("loop", true, "loop")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.specs...)
			assert.ErrorIs(t, err, ErrInvalidRegistry)
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		request []string
		want    []string
		wantErr error
	}{
		{
			name:    "all enabled by default",
			request: nil,
			want:    []string{"market", "fundamentals", "technical", "news", "sentiment"},
		},
		{
			name:    "prerequisites added and ordered first",
			request: []string{"sentiment"},
			want:    []string{"market", "news", "sentiment"},
		},
		{
			name:    "declaration order regardless of input order",
			request: []string{"technical", "news", "market", "news"},
			want:    []string{"market", "technical", "news"},
		},
		{
			name:    "unknown task",
			request: []string{"options"},
			wantErr: ErrUnknownTask,
		},
		{
			name:    "explicit disabled task",
			request: []string{"macro"},
			wantErr: ErrTaskDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := testRegistry(t).Resolve(tt.request)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Names(specs))
		})
	}
}

func TestResolve_DisabledPrerequisite(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.SetEnabled("news", false))

	specs, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"market", "fundamentals", "technical"}, Names(specs),
		"dependents of a disabled task drop out of the default set")

	_, err = r.Resolve([]string{"sentiment"})
	assert.ErrorIs(t, err, ErrTaskDisabled)
	assert.Contains(t, err.Error(), `required by "sentiment"`)
}

func TestRegistry_Overrides(t *testing.T) {
	r := testRegistry(t)

	require.NoError(t, r.SetEnabled("macro", true))
	spec, ok := r.Lookup("macro")
	require.True(t, ok)
	assert.True(t, spec.Enabled)

	assert.ErrorIs(t, r.SetEnabled("options", true), ErrUnknownTask)
	assert.ErrorIs(t, r.SetTimeout("options", 0), ErrUnknownTask)

	sentiment, _ := r.Lookup("sentiment")
	assert.True(t, sentiment.IsDependent())
	market, _ := r.Lookup("market")
	assert.False(t, market.IsDependent())
}
