package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Stages.Decompress)
	assert.True(t, cfg.Stages.Stats)
	assert.Equal(t, 1, cfg.Workers)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted window", func(c *Config) { c.HUMin = 900 }},
		{"zero spacing", func(c *Config) { c.SpacingMM = 0 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"negative timeout", func(c *Config) { c.ToolTimeout = Duration(-time.Second) }},
		{"bad color mode", func(c *Config) { c.ColorMode = "sometimes" }},
		{"empty tool command", func(c *Config) { c.C3dCmd = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidatePaths(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidatePaths("/data/raw", "/data/raw"))
	assert.Error(t, cfg.ValidatePaths("/data/raw", "/data/raw/out"))
	assert.NoError(t, cfg.ValidatePaths("/data/raw", "/data/rawout"))
	assert.NoError(t, cfg.ValidatePaths("/data/raw", "/data/processed"))
}

func TestToggles(t *testing.T) {
	cfg := Default()
	require.True(t, cfg.Stages.Disable(StageStats))
	assert.False(t, cfg.Stages.Enabled(StageStats))
	assert.True(t, cfg.Stages.Enabled(StageWindow))

	require.True(t, cfg.Stages.Only(StageResample))
	for _, s := range StageOrder {
		assert.Equal(t, s == StageResample, cfg.Stages.Enabled(s), s)
	}

	assert.False(t, cfg.Stages.Disable("upload"))
	assert.False(t, cfg.Stages.Only("upload"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casemill.yaml")
	doc := `
hu_min: -100
hu_max: 600
spacing_mm: 1.5
workers: 4
tool_timeout: 90s
stages:
  stats: false
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, float64(-100), cfg.HUMin)
	assert.Equal(t, float64(600), cfg.HUMax)
	assert.Equal(t, 1.5, cfg.SpacingMM)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, Duration(90*time.Second), cfg.ToolTimeout)
	assert.False(t, cfg.Stages.Enabled(StageStats))
	// Keys absent from the file keep their defaults.
	assert.True(t, cfg.Stages.Enabled(StageDecompress))
	assert.Equal(t, "dcm2niix", cfg.Dcm2niixCmd)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := Default()
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), &cfg))
}

func TestNormalizeDirArg(t *testing.T) {
	assert.Equal(t, "/data/raw", NormalizeDirArg("/data/raw/"))
	assert.Equal(t, "/", NormalizeDirArg("/"))
}
