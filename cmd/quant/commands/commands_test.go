package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/respcache"
	"github.com/wonny/aegis-signal/internal/tasks"
	"github.com/wonny/aegis-signal/pkg/config"
	"github.com/wonny/aegis-signal/pkg/logger"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.Equal(t, "****6789", maskSecret("sk-123456789"))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgresql://app:xxxxx@db:5432/signal", redactURL("postgresql://app:secret@db:5432/signal"))
}

func TestTTLPolicy(t *testing.T) {
	p := ttlPolicy(config.CacheConfig{QuoteTTL: 30 * time.Second, MacroTTL: 12 * time.Hour})

	assert.Equal(t, 30*time.Second, p.For(respcache.CategoryQuote))
	assert.Equal(t, 12*time.Hour, p.For(respcache.CategoryMacro))
	// 0 TTL falls back to the policy default
	assert.Equal(t, p.Default, p.For(respcache.CategoryNews))
}

func TestBuildRegistry(t *testing.T) {
	cfg := &config.Config{Tasks: config.TasksConfig{Disabled: []string{tasks.NameMacro}}}

	reg, err := buildRegistry(cfg, tasks.Deps{}, logger.Nop())
	require.NoError(t, err)

	macro, ok := reg.Lookup(tasks.NameMacro)
	require.True(t, ok)
	assert.False(t, macro.Enabled)

	cfg.Tasks.Disabled = []string{"options"}
	_, err = buildRegistry(cfg, tasks.Deps{}, logger.Nop())
	assert.ErrorIs(t, err, tasks.ErrUnknownTask)
}

func TestBuildRegistry_OverridesFileLogsHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\ntasks:\n  sentiment:\n    timeout: 30s\n"), 0o600))

	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{LogLevel: "info", Env: "test"}, &buf)
	cfg := &config.Config{Tasks: config.TasksConfig{OverridesPath: path}}

	reg, err := buildRegistry(cfg, tasks.Deps{}, log)
	require.NoError(t, err)

	sentiment, ok := reg.Lookup(tasks.NameSentiment)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, sentiment.Timeout)

	assert.Contains(t, buf.String(), "Task overrides applied")
	assert.Regexp(t, regexp.MustCompile(`"hash":"[0-9a-f]{64}"`), buf.String())
	assert.NotContains(t, buf.String(), "Failed to hash")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
