package stage

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Unit is the smallest item a stage processes: one file or one
// recognized directory, identified by its absolute path and its path
// relative to the stage's source root. Units are rediscovered fresh on
// every invocation; nothing about them is persisted.
type Unit struct {
	Path    string
	RelPath string
}

// DiscoverFiles walks root and returns a Unit for every file accepted
// by match, sorted by relative path for deterministic processing order.
func DiscoverFiles(root string, match func(path string) bool) ([]Unit, error) {
	var units []Unit
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !match(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		units = append(units, Unit{Path: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortUnits(units)
	return units, nil
}

// DiscoverDirs walks root and returns a Unit for every directory
// accepted by match, sorted by relative path. Matched directories are
// still descended into: nested series under one patient directory are
// separate units. The root itself is eligible (relative path "."), so a
// flat source whose files sit directly under root is one unit.
func DiscoverDirs(root string, match func(dir string) bool) ([]Unit, error) {
	var units []Unit
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || !match(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		units = append(units, Unit{Path: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortUnits(units)
	return units, nil
}

// MatchExt returns a file matcher accepting the given extensions
// (case-insensitive, with leading dot). ".nii.gz" style double
// extensions are matched as suffixes.
func MatchExt(exts ...string) func(path string) bool {
	lower := make([]string, len(exts))
	for i, e := range exts {
		lower[i] = strings.ToLower(e)
	}
	return func(path string) bool {
		name := strings.ToLower(filepath.Base(path))
		for _, e := range lower {
			if strings.HasSuffix(name, e) {
				return true
			}
		}
		return false
	}
}

func sortUnits(units []Unit) {
	sort.Slice(units, func(i, j int) bool { return units[i].RelPath < units[j].RelPath })
}
