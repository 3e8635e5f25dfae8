// Package registry maintains the persisted identity table: a stable,
// append-only mapping from source relative paths to assigned case names.
// Once a relative path is assigned case_NNN that assignment never
// changes and the number is never reused, even across reprocessing,
// source deletions, or crashed runs.
//
// The table lives next to the final dataset as name_mapping.csv:
// comma-delimited, UTF-8 with BOM, header row, sorted by assigned name,
// rewritten in full (write-to-temp-then-rename) on every persist.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TableFile is the identity table's file name inside the final dataset
// directory.
const TableFile = "name_mapping.csv"

// Ext is the extension assigned names carry.
const Ext = ".nii.gz"

const bom = "\uFEFF"

var header = []string{"New Name", "Rel Path", "Full Path"}

// namePattern extracts the numeric identifier from an assigned name.
// Rows that do not match are foreign: preserved on rewrite but ignored
// for identifier allocation.
var namePattern = regexp.MustCompile(`case_(\d+)`)

// Logger is the minimal logging surface the registry needs. Anomalies
// (foreign rows, unreadable tables) are kept distinct from ordinary
// warnings so operators can spot tampered or corrupt state.
type Logger interface {
	Warn(format string, args ...interface{})
	Anomaly(format string, args ...interface{})
}

// Entry is one persisted row of the identity table.
type Entry struct {
	Name     string // Assigned name, e.g. "case_007.nii.gz".
	RelPath  string // Source path relative to the stage source root (slash form).
	FullPath string // Source full path at time of assignment.
}

// Item is a unit discovered by the current run's scan.
type Item struct {
	RelPath  string
	FullPath string
}

// Assignment is the reconciliation outcome for one discovered item.
type Assignment struct {
	Name         string
	RelPath      string
	FullPath     string
	NeedsProcess bool // Output missing or newly allocated.
}

// Table is the in-memory reconciliation of persisted entries plus items
// discovered this run. It is the single writer of the persisted file.
type Table struct {
	rows  []Entry
	byRel map[string]int // slash-form rel path -> index into rows
	maxID int
}

// New returns an empty table (identifier allocation starts at 1).
func New() *Table {
	return &Table{byRel: make(map[string]int)}
}

// Load reads the persisted table at path. Loading is never fatal: an
// absent or unreadable file degrades to an empty table with a warning
// (existing case numbers can then be re-allocated — the documented
// trade-off of safety over numbering continuity), and individual bad
// rows are skipped without aborting the load.
func Load(path string, log Logger) *Table {
	t := New()

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Identity table %s unreadable, rebuilding from empty: %v", path, err)
		}
		return t
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	foreign, dropped := 0, 0
	for i := 0; ; i++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			// One mangled row must not cost the whole table.
			dropped++
			continue
		}
		if err != nil {
			log.Warn("Identity table %s unreadable, rebuilding from empty: %v", path, err)
			return New()
		}
		if len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], bom)
		}
		if i == 0 && len(rec) > 0 && rec[0] == header[0] {
			continue
		}
		if len(rec) < 2 {
			dropped++
			continue
		}
		e := Entry{Name: rec[0], RelPath: rec[1]}
		if len(rec) > 2 {
			e.FullPath = rec[2]
		}
		key := filepath.ToSlash(e.RelPath)
		if _, dup := t.byRel[key]; dup {
			log.Anomaly("Duplicate identity row for %q, keeping first", e.RelPath)
			continue
		}
		t.byRel[key] = len(t.rows)
		t.rows = append(t.rows, e)

		if id, ok := parseID(e.Name); ok {
			if id > t.maxID {
				t.maxID = id
			}
		} else {
			foreign++
		}
	}
	if foreign > 0 {
		log.Anomaly("Identity table has %d row(s) with non-standard names; preserved but ignored for numbering", foreign)
	}
	if dropped > 0 {
		log.Anomaly("Identity table had %d malformed row(s), skipped", dropped)
	}
	return t
}

func parseID(name string) (int, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// FormatName renders an identifier as a fixed-width assigned name.
// Identifiers above 999 widen naturally.
func FormatName(id int) string {
	return fmt.Sprintf("case_%03d%s", id, Ext)
}

// MaxID returns the highest identifier seen or allocated so far.
func (t *Table) MaxID() int { return t.maxID }

// Len returns the number of rows in the table.
func (t *Table) Len() int { return len(t.rows) }

// Lookup returns the assigned name for a relative path, if any.
func (t *Table) Lookup(relPath string) (string, bool) {
	idx, ok := t.byRel[filepath.ToSlash(relPath)]
	if !ok {
		return "", false
	}
	return t.rows[idx].Name, true
}

// Reconcile merges the discovered items into the table and returns one
// assignment per item, in input order.
//
// Known items keep their name; if outputExists reports their output
// missing they are marked for reprocessing under the original name
// (recovery never reassigns). Unknown items are allocated
// maxID+1 — never a reused gap. Rows whose source was not rediscovered
// are retained untouched: the table is a superset ledger, not a live
// inventory.
func (t *Table) Reconcile(items []Item, outputExists func(name string) bool) []Assignment {
	out := make([]Assignment, 0, len(items))
	for _, it := range items {
		key := filepath.ToSlash(it.RelPath)
		if idx, ok := t.byRel[key]; ok {
			row := &t.rows[idx]
			row.FullPath = it.FullPath
			out = append(out, Assignment{
				Name:         row.Name,
				RelPath:      row.RelPath,
				FullPath:     it.FullPath,
				NeedsProcess: !outputExists(row.Name),
			})
			continue
		}

		t.maxID++
		e := Entry{Name: FormatName(t.maxID), RelPath: key, FullPath: it.FullPath}
		t.byRel[key] = len(t.rows)
		t.rows = append(t.rows, e)
		out = append(out, Assignment{
			Name:         e.Name,
			RelPath:      e.RelPath,
			FullPath:     e.FullPath,
			NeedsProcess: true,
		})
	}
	return out
}

// Rows returns all entries sorted by assigned name (the persisted order).
func (t *Table) Rows() []Entry {
	rows := make([]Entry, len(t.rows))
	copy(rows, t.rows)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].RelPath < rows[j].RelPath
	})
	return rows
}

// Persist writes the complete table to path as the new canonical file.
// The write is atomic: a temp file in the same directory is written,
// synced, and renamed over the old table, so an interrupted run never
// leaves a half-written table behind.
func (t *Table) Persist(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create table directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".name_mapping-*.csv")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(bom); err != nil {
		tmp.Close()
		return fmt.Errorf("write table: %w", err)
	}
	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write table header: %w", err)
	}
	for _, e := range t.Rows() {
		if err := w.Write([]string{e.Name, e.RelPath, e.FullPath}); err != nil {
			tmp.Close()
			return fmt.Errorf("write table row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close table: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace table: %w", err)
	}
	return nil
}
