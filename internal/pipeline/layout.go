package pipeline

import (
	"path/filepath"

	"github.com/casemill/casemill/internal/journal"
	"github.com/casemill/casemill/internal/registry"
)

// Stage output directory names under the output root. Numbered so a
// directory listing reads in pipeline order.
const (
	dirUncompressed = "01_Uncompressed"
	dirNIfTI        = "02_NIfTI"
	dirClipped      = "03_Clipped_HU"
	dirFinal        = "04_Resampled_1mm"
)

// LogFileName is the append-mode pipeline log in the output root.
const LogFileName = "pipeline_log.txt"

// Layout resolves the fixed directory structure under the output root.
// Each stage reads the previous stage's directory and writes its own,
// so the whole pipeline state is recoverable from a directory listing.
type Layout struct {
	OutputRoot string
}

// NewLayout returns the layout rooted at outputRoot.
func NewLayout(outputRoot string) Layout {
	return Layout{OutputRoot: outputRoot}
}

// Uncompressed is the decompress stage's destination tree.
func (l Layout) Uncompressed() string { return filepath.Join(l.OutputRoot, dirUncompressed) }

// NIfTI is the convert stage's destination tree.
func (l Layout) NIfTI() string { return filepath.Join(l.OutputRoot, dirNIfTI) }

// Clipped is the window stage's destination tree.
func (l Layout) Clipped() string { return filepath.Join(l.OutputRoot, dirClipped) }

// Final is the flat identifier-named dataset directory.
func (l Layout) Final() string { return filepath.Join(l.OutputRoot, dirFinal) }

// TablePath is the persisted identity table inside the final directory.
func (l Layout) TablePath() string { return filepath.Join(l.Final(), registry.TableFile) }

// LogPath is the pipeline log file.
func (l Layout) LogPath() string { return filepath.Join(l.OutputRoot, LogFileName) }

// JournalPath is the SQLite run journal.
func (l Layout) JournalPath() string { return filepath.Join(l.OutputRoot, journal.FileName) }
