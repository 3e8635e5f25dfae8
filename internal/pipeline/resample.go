package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/gate"
	"github.com/casemill/casemill/internal/registry"
	"github.com/casemill/casemill/internal/stage"
)

// runResample is the identifier-assignment stage. Unlike the mirrored
// stages it flattens its output: each windowed volume gets a stable
// case_NNN name through the identity table, and the table is rewritten
// in full after every run. Reconciliation is single-threaded; only the
// resample transforms fan out.
func (p *Pipeline) runResample(ctx context.Context) (stage.Outcome, error) {
	var o stage.Outcome
	src := p.layout.Clipped()
	if out, missing := p.missingSource(config.StageResample, src); missing {
		return out, nil
	}
	dst := p.layout.Final()
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return o, err
	}

	units, err := stage.DiscoverFiles(src, stage.MatchExt(registry.Ext))
	if err != nil {
		return o, fmt.Errorf("%s: discover: %w", config.StageResample, err)
	}
	o.Discovered = len(units)

	table := registry.New()
	if !p.cfg.Force {
		table = registry.Load(p.layout.TablePath(), p.log)
		if table.Len() > 0 {
			p.log.Info("[%s] loaded identity table: %d entries, max id %d",
				config.StageResample, table.Len(), table.MaxID())
		}
	}

	items := make([]registry.Item, len(units))
	for i, u := range units {
		items[i] = registry.Item{RelPath: u.RelPath, FullPath: u.Path}
	}
	assignments := table.Reconcile(items, func(name string) bool {
		return gate.Exists(filepath.Join(dst, name))
	})

	var work []stage.Work
	for _, a := range assignments {
		if !a.NeedsProcess {
			o.Skipped++
			continue
		}
		work = append(work, stage.Work{
			Unit: stage.Unit{Path: a.FullPath, RelPath: a.RelPath},
			Dest: filepath.Join(dst, a.Name),
		})
	}

	p.log.Info("[%s] %d discovered, %d to process, %d up to date",
		config.StageResample, o.Discovered, len(work), o.Skipped)

	processed, failed, werr := stage.Execute(ctx, p.log, work,
		p.Transforms[config.StageResample], p.cfg.Workers)
	o.Processed, o.Failed = processed, failed

	// The table is persisted even on interruption: it holds only
	// reconciled assignments, and unwritten outputs fail the
	// completeness check next run under the same names.
	if err := table.Persist(p.layout.TablePath()); err != nil {
		return o, err
	}
	p.log.Debug("[%s] identity table written: %d rows", config.StageResample, table.Len())
	return o, werr
}
