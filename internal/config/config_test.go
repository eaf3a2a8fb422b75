package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.Provider.Provider)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 100, cfg.Sync.MaxEntries)
	assert.Equal(t, 7, cfg.Sync.MaxAgeDays)
	assert.InDelta(t, 0.10, cfg.Observability.WarnFailureRate, 1e-9)
	assert.InDelta(t, 0.25, cfg.Observability.CriticalFailureRate, 1e-9)

	cfg.Provider.APIKey = "k"
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Sync.MaxEntries)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  max_entries: 50\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Sync.MaxEntries)
	assert.Equal(t, 7, cfg.Sync.MaxAgeDays, "unset fields keep defaults")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Breaker.CoolDown = "45s"
	cfg.Observability.CriticalFailureRate = 0.30
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "45s", loaded.Breaker.CoolDown)
	assert.InDelta(t, 0.30, loaded.Observability.CriticalFailureRate, 1e-9)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("MAEPLE_DB", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Provider.APIKey)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.DatabasePath)
}

func TestEnvOverrides_ProviderSelectsKey(t *testing.T) {
	t.Setenv("MAEPLE_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider.Provider)
	assert.Equal(t, "gem-key", cfg.Provider.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"unknown provider", func(c *Config) { c.Provider.Provider = "mystery" }, true},
		{"zero threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }, true},
		{"zero queue capacity", func(c *Config) { c.Sync.MaxEntries = 0 }, true},
		{"failure rate above one", func(c *Config) { c.Observability.WarnFailureRate = 1.5 }, true},
		{"warn above critical", func(c *Config) {
			c.Observability.WarnFailureRate = 0.5
			c.Observability.CriticalFailureRate = 0.2
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Provider.APIKey = "k"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.GetProviderTimeout())
	assert.Equal(t, 30*time.Second, cfg.DrainInterval())

	bs := cfg.BreakerSettings()
	assert.Equal(t, 30*time.Second, bs.CoolDown)
	assert.Equal(t, 5*time.Minute, bs.MaxCoolDown)

	ss := cfg.SyncSettings()
	assert.Equal(t, 7*24*time.Hour, ss.MaxAge)
	assert.Equal(t, 60*time.Second, ss.EntryTimeout)

	// Malformed durations fall back rather than fail.
	cfg.Breaker.CoolDown = "soon"
	assert.Equal(t, 30*time.Second, cfg.BreakerSettings().CoolDown)
}

func TestThresholdsConversion(t *testing.T) {
	cfg := DefaultConfig()
	th := cfg.Thresholds()
	assert.Equal(t, 50, th.WindowSize)
	assert.Equal(t, 5, th.ConsecutiveFailures)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	initial := DefaultConfig()
	initial.Provider.APIKey = "k"
	require.NoError(t, initial.Save(path))

	w, err := NewWatcher(path, initial)
	require.NoError(t, err)

	var reloaded *Config
	reloads := make(chan *Config, 4)
	w.OnReload(func(c *Config) { reloads <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Give the watcher a beat to arm before writing.
	time.Sleep(100 * time.Millisecond)

	updated := DefaultConfig()
	updated.Provider.APIKey = "k"
	updated.Observability.CriticalFailureRate = 0.5
	require.NoError(t, updated.Save(path))

	select {
	case reloaded = <-reloads:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload")
	}
	assert.InDelta(t, 0.5, reloaded.Observability.CriticalFailureRate, 1e-9)
	assert.InDelta(t, 0.5, w.Current().Observability.CriticalFailureRate, 1e-9)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_BurstServesFinalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	initial := DefaultConfig()
	initial.Provider.APIKey = "k"
	require.NoError(t, initial.Save(path))

	w, err := NewWatcher(path, initial)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)

	// Two saves in quick succession; the second must be the one served.
	first := DefaultConfig()
	first.Provider.APIKey = "k"
	first.Sync.MaxEntries = 111
	require.NoError(t, first.Save(path))

	time.Sleep(100 * time.Millisecond)

	second := DefaultConfig()
	second.Provider.APIKey = "k"
	second.Sync.MaxEntries = 222
	require.NoError(t, second.Save(path))

	require.Eventually(t, func() bool {
		return w.Current().Sync.MaxEntries == 222
	}, 5*time.Second, 50*time.Millisecond, "the last write of a save burst must be loaded")
}

func TestWatcher_RejectsInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	initial := DefaultConfig()
	initial.Provider.APIKey = "k"
	require.NoError(t, initial.Save(path))

	w, err := NewWatcher(path, initial)
	require.NoError(t, err)
	defer w.watcher.Close()

	require.NoError(t, os.WriteFile(path, []byte("breaker:\n  failure_threshold: 0\n"), 0644))
	w.reload()

	assert.Equal(t, 5, w.Current().Breaker.FailureThreshold, "invalid edit must not replace the running config")
}
