package pipeline

import (
	"context"
	"fmt"

	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/nifti"
	"github.com/casemill/casemill/internal/registry"
	"github.com/casemill/casemill/internal/stage"
	"github.com/casemill/casemill/internal/stats"
)

// runStatsStage recomputes the global mean/std over every final volume.
// Always from scratch: the final set can shrink or grow between runs,
// so incremental accumulation would drift.
func (p *Pipeline) runStatsStage(ctx context.Context) (stage.Outcome, error) {
	var o stage.Outcome
	dir := p.layout.Final()
	if out, missing := p.missingSource(config.StageStats, dir); missing {
		return out, nil
	}

	units, err := stage.DiscoverFiles(dir, stage.MatchExt(registry.Ext))
	if err != nil {
		return o, fmt.Errorf("%s: discover: %w", config.StageStats, err)
	}
	o.Discovered = len(units)
	if len(units) == 0 {
		p.log.Info("[%s] no volumes yet", config.StageStats)
		return o, nil
	}

	var acc stats.Accumulator
	for _, u := range units {
		if ctx.Err() != nil {
			return o, ctx.Err()
		}
		n, err := nifti.Stream(u.Path, acc.Add)
		if err != nil {
			p.log.Error("  %s: %v", u.RelPath, err)
			o.Failed++
			continue
		}
		o.Processed++
		p.log.Debug("  %s: %d voxels", u.RelPath, n)
	}

	if acc.Count() > 0 {
		p.log.Info("========================================")
		p.log.Info("Global Mean: %.4f", acc.Mean())
		p.log.Info("Global Std : %.4f", acc.Std())
		p.log.Info("========================================")
	}
	return o, nil
}
