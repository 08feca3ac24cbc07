package vkrt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver = "vulkan"
frames_in_flight = 3
samples_to_render = 64
samples_per_frame = 4
fence_timeout = "250ms"
background = [0.0, 0.5, 1.0]
staging_limit = "8MiB"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "vulkan", cfg.Driver)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, 64, cfg.SamplesToRender)
	assert.Equal(t, 4, cfg.SamplesPerFrame)
	assert.Equal(t, 250*time.Millisecond, cfg.FenceTimeout)
	assert.Equal(t, [3]float32{0, 0.5, 1}, cfg.Background)
	assert.Equal(t, int64(8<<20), cfg.StagingLimit)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig().Seed, cfg.Seed)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown.toml":    `colour = "red"`,
		"duration.toml":   `fence_timeout = "soon"`,
		"background.toml": `background = [1.0, 2.0]`,
		"size.toml":       `staging_limit = "lots"`,
		"syntax.toml":     `driver = `,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}
}

func TestConfigEncodeRoundTrip(t *testing.T) {
	want := DefaultConfig()
	want.Background = [3]float32{0.5, 0.25, 1}
	want.ShaderDir = "/opt/vkrt/shaders"
	want.Validation = true

	data, err := want.Encode()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfigCheckFillsDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.check())
	def := DefaultConfig()
	assert.Equal(t, def.Driver, cfg.Driver)
	assert.Equal(t, def.FramesInFlight, cfg.FramesInFlight)
	assert.Equal(t, def.FenceTimeout, cfg.FenceTimeout)

	cfg.SamplesToRender = -1
	assert.Error(t, cfg.check())
}
