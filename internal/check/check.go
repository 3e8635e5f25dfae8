// Package check provides system diagnostics (the check command) and
// pre-stage tool validation for dcmdjpeg, dcm2niix, and c3d.
package check

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/casemill/casemill/internal/config"
)

// Sentinel errors returned when a required external tool is missing.
var (
	ErrDcmdjpegNotFound = errors.New("dcmdjpeg not found on PATH (DCMTK)")
	ErrDcm2niixNotFound = errors.New("dcm2niix not found on PATH")
	ErrC3dNotFound      = errors.New("c3d not found on PATH (Convert3D)")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// StageTool returns the external command a stage depends on, along with
// the sentinel error to use if it is missing. Stages that run entirely
// in-process return "".
func StageTool(cfg *config.Config, stage string) (string, error) {
	switch stage {
	case config.StageDecompress:
		return cfg.DcmdjpegCmd, ErrDcmdjpegNotFound
	case config.StageConvert:
		return cfg.Dcm2niixCmd, ErrDcm2niixNotFound
	case config.StageWindow, config.StageResample:
		return cfg.C3dCmd, ErrC3dNotFound
	}
	return "", nil
}

// CheckStage verifies the tool for one stage is on PATH.
func CheckStage(cfg *config.Config, stage string) error {
	tool, missing := StageTool(cfg, stage)
	if tool == "" {
		return nil
	}
	if _, err := exec.LookPath(tool); err != nil {
		return missing
	}
	return nil
}

// CheckDeps validates the tools for every enabled stage before a run.
// Returns the first sentinel error encountered.
func CheckDeps(cfg *config.Config) error {
	for _, stage := range config.StageOrder {
		if !cfg.Stages.Enabled(stage) {
			continue
		}
		if err := CheckStage(cfg, stage); err != nil {
			return err
		}
	}
	return nil
}

// RunCheck runs the interactive check flow: prints availability and
// version of each external tool. Informational only, never fails.
func RunCheck(cfg *config.Config, log Logger) {
	log.Info("=== System Check ===")

	checkTool(log, cfg.DcmdjpegCmd, "--version")
	checkTool(log, cfg.Dcm2niixCmd, "-v")
	checkTool(log, cfg.C3dCmd, "-version")
}

// checkTool verifies one tool is on PATH and logs its version line.
func checkTool(log Logger, tool, versionFlag string) {
	path, err := exec.LookPath(tool)
	if err != nil {
		log.Error("%s not found on PATH", tool)
		return
	}
	out, err := exec.Command(tool, versionFlag).CombinedOutput()
	if err != nil && len(out) == 0 {
		log.Warn("%s found at %s but %s failed: %v", tool, path, versionFlag, err)
		return
	}
	log.Success("%s: %s", tool, firstLine(string(out)))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
