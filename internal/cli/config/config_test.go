package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.NoColor)
	assert.True(t, cfg.Probe)
	assert.Equal(t, 1024, cfg.BodyCacheSize)
	assert.Empty(t, cfg.SearchPaths)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "log_level: debug\ncore_assembly: Base\nsearch_paths:\n  - /opt/ref\nbody_cache_size: 16\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mdview.yaml"), []byte(yaml), 0o644))
	t.Setenv("MDVIEW_NO_COLOR", "true")
	t.Setenv("MDVIEW_CORE_ASSEMBLY", "Other")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Other", cfg.CoreAssembly, "environment overrides the file")
	assert.Equal(t, []string{"/opt/ref"}, cfg.SearchPaths)
	assert.Equal(t, 16, cfg.BodyCacheSize)
	assert.True(t, cfg.NoColor)

	opts := cfg.HostOptions(nil)
	assert.Equal(t, "Other", opts.CoreAssemblyName)
	assert.Equal(t, 16, opts.BodyCacheSize)
	assert.NotNil(t, opts.Intern)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"level", map[string]string{"MDVIEW_LOG_LEVEL": "loud"}},
		{"cache", map[string]string{"MDVIEW_BODY_CACHE_SIZE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(New())
			assert.Error(t, err)
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := &Config{LogLevel: "error", NoColor: true}
	log, err := cfg.Logger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(-1))
	assert.True(t, log.Core().Enabled(2))

	_, err = (&Config{LogLevel: "nope"}).Logger()
	assert.Error(t, err)
}
