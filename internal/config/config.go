// Package config holds runtime configuration: defaults, optional YAML
// file overrides, and validation. The Config value is built once at
// startup and treated as immutable for the whole run.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Stage names, in pipeline order.
const (
	StageDecompress = "decompress"
	StageConvert    = "convert"
	StageWindow     = "window"
	StageResample   = "resample"
	StageStats      = "stats"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []string{
	StageDecompress,
	StageConvert,
	StageWindow,
	StageResample,
	StageStats,
}

// Toggles holds the per-stage enable flags. A disabled stage is skipped
// entirely; its output from a previous run is consumed as-is by the next
// enabled stage.
type Toggles struct {
	Decompress bool `yaml:"decompress"`
	Convert    bool `yaml:"convert"`
	Window     bool `yaml:"window"`
	Resample   bool `yaml:"resample"`
	Stats      bool `yaml:"stats"`
}

// Enabled reports whether the named stage is switched on.
func (t Toggles) Enabled(stage string) bool {
	switch stage {
	case StageDecompress:
		return t.Decompress
	case StageConvert:
		return t.Convert
	case StageWindow:
		return t.Window
	case StageResample:
		return t.Resample
	case StageStats:
		return t.Stats
	}
	return false
}

// Disable switches the named stage off. Returns false for unknown names.
func (t *Toggles) Disable(stage string) bool { return t.set(stage, false) }

// Only switches every stage off except the named one.
func (t *Toggles) Only(stage string) bool {
	if !IsStage(stage) {
		return false
	}
	*t = Toggles{}
	return t.set(stage, true)
}

func (t *Toggles) set(stage string, v bool) bool {
	switch stage {
	case StageDecompress:
		t.Decompress = v
	case StageConvert:
		t.Convert = v
	case StageWindow:
		t.Window = v
	case StageResample:
		t.Resample = v
	case StageStats:
		t.Stats = v
	default:
		return false
	}
	return true
}

// IsStage reports whether name is a known stage name.
func IsStage(name string) bool {
	for _, s := range StageOrder {
		if s == name {
			return true
		}
	}
	return false
}

// Config holds all runtime settings. Populated by [Default], optionally
// overlaid by [LoadFile], then by CLI flags, and validated once.
type Config struct {
	// Paths (set from positional args).
	InputDir  string
	OutputDir string

	// Intensity window applied by the window stage, in Hounsfield units.
	HUMin float64 `yaml:"hu_min"` // Default: -50.
	HUMax float64 `yaml:"hu_max"` // Default: 800.

	// Target isotropic voxel spacing in millimetres for the resample stage.
	SpacingMM float64 `yaml:"spacing_mm"` // Default: 1.0.

	// External tool commands. Bare names are resolved on PATH; absolute
	// paths are used verbatim.
	DcmdjpegCmd string `yaml:"dcmdjpeg"` // Default: "dcmdjpeg".
	Dcm2niixCmd string `yaml:"dcm2niix"` // Default: "dcm2niix".
	C3dCmd      string `yaml:"c3d"`      // Default: "c3d".

	// Behavior.
	Force       bool     // Reprocess everything, ignoring existing outputs.
	Stages      Toggles  `yaml:"stages"`       // Default: all enabled.
	Workers     int      `yaml:"workers"`      // Default: 1 (strictly sequential).
	ToolTimeout Duration `yaml:"tool_timeout"` // 0 = no per-invocation bound.

	// Analyze command: read one voxel in every SampleRate for percentile
	// estimation. Default: 20.
	SampleRate int `yaml:"sample_rate"`

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode `yaml:"color"` // Default: "auto".
	LogFile   string    // Default: <output>/pipeline_log.txt, set by the run command.
	NoJournal bool      `yaml:"no_journal"` // Skip the SQLite run journal.
}

// Default returns a Config with all defaults. Used as the base before
// file and flag overrides.
func Default() Config {
	return Config{
		HUMin:       -50,
		HUMax:       800,
		SpacingMM:   1.0,
		DcmdjpegCmd: "dcmdjpeg",
		Dcm2niixCmd: "dcm2niix",
		C3dCmd:      "c3d",
		Stages: Toggles{
			Decompress: true,
			Convert:    true,
			Window:     true,
			Resample:   true,
			Stats:      true,
		},
		Workers:    1,
		SampleRate: 20,
		ColorMode:  ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an
// empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum and range fields, and that tool commands are
// non-empty. Path presence is checked by the run command, which knows
// whether paths are required.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}
	if c.HUMin >= c.HUMax {
		return fmt.Errorf("hu_min (%g) must be below hu_max (%g)", c.HUMin, c.HUMax)
	}
	if c.SpacingMM <= 0 {
		return fmt.Errorf("spacing_mm must be positive, got %g", c.SpacingMM)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be at least 1, got %d", c.SampleRate)
	}
	if c.ToolTimeout < 0 {
		return errors.New("tool_timeout must not be negative")
	}
	if c.DcmdjpegCmd == "" || c.Dcm2niixCmd == "" || c.C3dCmd == "" {
		return errors.New("external tool commands must not be empty")
	}
	return nil
}

// ValidatePaths ensures the resolved output directory is not inside (or
// equal to) the resolved input directory, which would make the pipeline
// rediscover its own outputs. Both arguments must be absolute,
// symlink-resolved paths.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == inputAbs || strings.HasPrefix(outputAbs+sep, inputAbs+sep) {
		return errors.New("output directory must not be inside input directory")
	}
	return nil
}
