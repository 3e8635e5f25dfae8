package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/logging"
	"github.com/casemill/casemill/internal/registry"
	"github.com/casemill/casemill/internal/stage"
	"github.com/casemill/casemill/internal/stats"
)

// Analyze reports the HU distribution of every volume under dir and
// suggests a clipping window for the window stage. Read-only.
func Analyze(ctx context.Context, cfg *config.Config, log *logging.Logger, dir string) error {
	units, err := stage.DiscoverFiles(dir, stage.MatchExt(registry.Ext))
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("no %s files under %s", registry.Ext, dir)
	}
	log.Info("Found %d volumes, sampling 1 in %d voxels", len(units), cfg.SampleRate)

	var files []stats.FileStats
	for _, u := range units {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fs, err := stats.AnalyzeFile(u.Path, cfg.SampleRate)
		if err != nil {
			log.Error("  %s: %v", u.RelPath, err)
			continue
		}
		files = append(files, fs)
		log.Debug("  %s: min %.1f max %.1f p99.5 %.1f", u.RelPath, fs.Min, fs.Max, fs.P995)
	}
	if len(files) == 0 {
		return errors.New("no volumes could be read")
	}

	r := stats.Summarize(files)
	log.Info("==================================================")
	log.Info("HU distribution (%d of %d volumes read)", r.Files, len(units))
	log.Info("  Avg min / max     : %.2f / %.2f", r.AvgMin, r.AvgMax)
	log.Info("  1%% percentile     : %.2f", r.AvgP01)
	log.Info("  99%% percentile    : %.2f", r.AvgP99)
	log.Info("  99.5%% percentile  : %.2f", r.AvgP995)
	log.Info("  Foreground mean   : %.2f", r.AvgTissue)
	log.Info("==================================================")
	log.Success("Suggested window: hu_min=%g hu_max=%g", r.SuggestMin, r.SuggestMax)
	return nil
}
