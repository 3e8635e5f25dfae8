// Package pipeline orchestrates the ordered stages: decompress, convert,
// window, resample, stats. Every stage rediscovers its state from the
// filesystem, so an interrupted run resumes from cold start with
// identical results.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/casemill/casemill/internal/check"
	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/dicom"
	"github.com/casemill/casemill/internal/display"
	"github.com/casemill/casemill/internal/gate"
	"github.com/casemill/casemill/internal/journal"
	"github.com/casemill/casemill/internal/logging"
	"github.com/casemill/casemill/internal/sanitize"
	"github.com/casemill/casemill/internal/stage"
	"github.com/casemill/casemill/internal/transform"
)

// minVolumeSize is the completeness bar for written volumes: anything
// this small is a truncated leftover from a crashed run.
const minVolumeSize = 1024

// RunStats aggregates counters across all stages of one run.
type RunStats struct {
	StagesRun   int
	StageErrors int
	Discovered  int
	Processed   int
	Skipped     int
	Failed      int
}

// Pipeline runs the enabled stages against one input/output pair.
type Pipeline struct {
	cfg    *config.Config
	log    *logging.Logger
	layout Layout

	// Transforms maps stage name to its transform collaborator. Built
	// from the external tools by New; tests substitute fakes.
	Transforms map[string]stage.Transform
}

// New builds a pipeline with the real external-tool transforms.
func New(cfg *config.Config, log *logging.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		log:    log,
		layout: NewLayout(cfg.OutputDir),
		Transforms: map[string]stage.Transform{
			config.StageDecompress: transform.Decompress(cfg),
			config.StageConvert:    transform.Convert(cfg),
			config.StageWindow:     transform.Window(cfg),
			config.StageResample:   transform.Resample(cfg),
		},
	}
}

// Run executes the enabled stages in order. A missing tool or discovery
// error is fatal for its stage only; the remaining stages still run.
// Context cancellation stops the whole run after the current units.
func (p *Pipeline) Run(ctx context.Context) RunStats {
	var stats RunStats
	start := time.Now()

	j := p.openJournal()
	runID := ""
	if j != nil {
		defer j.Close()
		id, err := j.BeginRun(p.cfg.Force)
		if err != nil {
			p.log.Warn("Journal: %v", err)
		} else {
			runID = id
		}
	}

	for _, name := range config.StageOrder {
		if ctx.Err() != nil {
			p.log.Warn("Interrupted")
			break
		}
		if !p.cfg.Stages.Enabled(name) {
			p.log.Debug("[%s] disabled, skipping", name)
			continue
		}
		if err := check.CheckStage(p.cfg, name); err != nil {
			p.log.Error("[%s] %v", name, err)
			stats.StageErrors++
			continue
		}

		stageStart := time.Now()
		o, err := p.runStage(ctx, name)
		elapsed := time.Since(stageStart)

		stats.StagesRun++
		stats.Discovered += o.Discovered
		stats.Processed += o.Processed
		stats.Skipped += o.Skipped
		stats.Failed += o.Failed

		if j != nil && runID != "" {
			if jerr := j.RecordStage(runID, name,
				int64(o.Discovered), int64(o.Processed), int64(o.Skipped), int64(o.Failed), elapsed); jerr != nil {
				p.log.Warn("Journal: %v", jerr)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				p.log.Warn("[%s] interrupted", name)
				break
			}
			p.log.Error("[%s] %v", name, err)
			stats.StageErrors++
			continue
		}
		p.log.Success("[%s] %d processed, %d skipped, %d failed (%s)",
			name, o.Processed, o.Skipped, o.Failed, display.FormatDuration(elapsed))
	}

	if j != nil && runID != "" {
		if err := j.FinishRun(runID); err != nil {
			p.log.Warn("Journal: %v", err)
		}
	}

	p.logSummary(&stats, time.Since(start))
	return stats
}

// openJournal opens the run journal, or returns nil when disabled or
// unavailable. The journal is advisory: failure to open is a warning.
func (p *Pipeline) openJournal() *journal.Journal {
	if p.cfg.NoJournal {
		return nil
	}
	if err := os.MkdirAll(p.layout.OutputRoot, 0o755); err != nil {
		p.log.Warn("Journal: %v", err)
		return nil
	}
	j, err := journal.Open(p.layout.JournalPath())
	if err != nil {
		p.log.Warn("Journal: %v", err)
		return nil
	}
	return j
}

func (p *Pipeline) runStage(ctx context.Context, name string) (stage.Outcome, error) {
	switch name {
	case config.StageDecompress:
		return p.runDecompress(ctx)
	case config.StageConvert:
		return p.runConvert(ctx)
	case config.StageWindow:
		return p.runWindow(ctx)
	case config.StageResample:
		return p.runResample(ctx)
	case config.StageStats:
		return p.runStatsStage(ctx)
	}
	return stage.Outcome{}, nil
}

func (p *Pipeline) runDecompress(ctx context.Context) (stage.Outcome, error) {
	r := &stage.Runner{
		Name:     config.StageDecompress,
		DestRoot: p.layout.Uncompressed(),
		Discover: func() ([]stage.Unit, error) {
			return stage.DiscoverFiles(p.cfg.InputDir, dicom.HasExt)
		},
		DestFor:   sanitizeDest,
		Complete:  gate.Exists,
		Transform: p.Transforms[config.StageDecompress],
		Workers:   p.cfg.Workers,
		Force:     p.cfg.Force,
	}
	return r.Run(ctx, p.log)
}

func (p *Pipeline) runConvert(ctx context.Context) (stage.Outcome, error) {
	src := p.layout.Uncompressed()
	if o, missing := p.missingSource(config.StageConvert, src); missing {
		return o, nil
	}
	r := &stage.Runner{
		Name:     config.StageConvert,
		DestRoot: p.layout.NIfTI(),
		Discover: func() ([]stage.Unit, error) {
			return stage.DiscoverDirs(src, dicom.IsStudyDir)
		},
		Complete:  gate.DirContains("*.nii.gz"),
		Transform: p.Transforms[config.StageConvert],
		Workers:   p.cfg.Workers,
		Force:     p.cfg.Force,
	}
	return r.Run(ctx, p.log)
}

func (p *Pipeline) runWindow(ctx context.Context) (stage.Outcome, error) {
	src := p.layout.NIfTI()
	if o, missing := p.missingSource(config.StageWindow, src); missing {
		return o, nil
	}
	r := &stage.Runner{
		Name:     config.StageWindow,
		DestRoot: p.layout.Clipped(),
		Discover: func() ([]stage.Unit, error) {
			return stage.DiscoverFiles(src, stage.MatchExt(".nii.gz"))
		},
		Complete:  gate.MinSize(minVolumeSize),
		Transform: p.Transforms[config.StageWindow],
		Workers:   p.cfg.Workers,
		Force:     p.cfg.Force,
	}
	return r.Run(ctx, p.log)
}

// missingSource handles a stage whose source directory does not exist
// yet (earlier stages disabled and never run). Not an error: the stage
// simply has nothing to do.
func (p *Pipeline) missingSource(name, src string) (stage.Outcome, bool) {
	if _, err := os.Stat(src); err != nil {
		p.log.Warn("[%s] source %s missing, nothing to do", name, src)
		return stage.Outcome{}, true
	}
	return stage.Outcome{}, false
}

// sanitizeDest maps a source-relative path to its sanitized mirror:
// every directory segment cleaned, the file name cleaned with its
// extension preserved.
func sanitizeDest(rel string) string {
	dir, base := filepath.Split(rel)
	dir = filepath.Clean(dir)
	if dir == "." || dir == string(filepath.Separator) {
		return sanitize.FileName(base)
	}
	return filepath.Join(sanitize.Rel(dir), sanitize.FileName(base))
}

func (p *Pipeline) logSummary(stats *RunStats, elapsed time.Duration) {
	p.log.Info("==============================")
	p.log.Info("Done: %d processed, %d skipped, %d failed across %d stages (%s)",
		stats.Processed, stats.Skipped, stats.Failed, stats.StagesRun, display.FormatDuration(elapsed))
	if stats.StageErrors > 0 {
		p.log.Warn("%d stage(s) could not run", stats.StageErrors)
	}
	if size, n, err := dirTotal(p.layout.Final()); err == nil && n > 0 {
		p.log.Info("Final dataset: %d volumes, %s", n, display.FormatBytes(size))
	}
}

// dirTotal sums the sizes of the final volumes.
func dirTotal(dir string) (int64, int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.nii.gz"))
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil {
			total += fi.Size()
		}
	}
	return total, len(matches), nil
}
