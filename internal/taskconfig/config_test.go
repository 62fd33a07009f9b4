package taskconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/tasks"
)

func newRegistry(t *testing.T) *tasks.Registry {
	t.Helper()
	noop := func(string) contracts.Task { return nil }
	reg, err := tasks.NewRegistry(
		tasks.Spec{Name: "market", New: noop, Enabled: true},
		tasks.Spec{Name: "news", New: noop, Enabled: true},
		tasks.Spec{Name: "sentiment", New: noop, Requires: []string{"market", "news"}, Enabled: true, Timeout: time.Minute},
	)
	require.NoError(t, err)
	return reg
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: "version: 1\ntasks:\n  news:\n    enabled: false\n  sentiment:\n    timeout: 30s\n",
		},
		{
			name:    "unknown field",
			yaml:    "version: 1\ntasks:\n  news:\n    enabeld: false\n",
			wantErr: "enabeld",
		},
		{
			name:    "bad version",
			yaml:    "version: 2\n",
			wantErr: "version",
		},
		{
			name:    "bad timeout",
			yaml:    "version: 1\ntasks:\n  news:\n    timeout: soon\n",
			wantErr: "tasks.news.timeout",
		},
		{
			name:    "timeout too long",
			yaml:    "version: 1\ntasks:\n  news:\n    timeout: 1h\n",
			wantErr: "tasks.news.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, cfg.Tasks, 2)
		})
	}
}

func TestApply(t *testing.T) {
	reg := newRegistry(t)
	cfg, err := Parse([]byte("version: 1\ntasks:\n  news:\n    enabled: false\n  sentiment:\n    timeout: 30s\n"))
	require.NoError(t, err)

	require.NoError(t, Apply(reg, cfg))

	news, _ := reg.Lookup("news")
	assert.False(t, news.Enabled)
	sentiment, _ := reg.Lookup("sentiment")
	assert.True(t, sentiment.Enabled)
	assert.Equal(t, 30*time.Second, sentiment.Timeout)
}

func TestApply_UnknownTaskChangesNothing(t *testing.T) {
	reg := newRegistry(t)
	off := false
	cfg := &Config{Version: 1, Tasks: map[string]TaskOverride{
		"market":  {Enabled: &off},
		"options": {Enabled: &off},
	}}

	err := Apply(reg, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tasks.options")

	market, _ := reg.Lookup("market")
	assert.True(t, market.Enabled)
}

func TestDisable(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, Disable(reg, []string{"news"}))

	news, _ := reg.Lookup("news")
	assert.False(t, news.Enabled)

	assert.ErrorIs(t, Disable(reg, []string{"nope"}), tasks.ErrUnknownTask)
}

func TestLoadAndHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\ntasks:\n  news:\n    enabled: false\n"), 0o600))

	cfg, raw, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	h1, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, _ := Hash(cfg)
	assert.Equal(t, h1, h2)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
