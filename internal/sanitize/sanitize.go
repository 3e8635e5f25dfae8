// Package sanitize normalizes source file and directory names into safe
// ASCII path components. Scanner exports routinely carry patient names
// in non-ASCII scripts; downstream tools choke on them, so the first
// stage rewrites every path component before anything else runs.
package sanitize

import (
	"path/filepath"
	"strings"
)

// Fallback replaces components that are empty after cleaning.
const Fallback = "Unknown_ID"

// trimSet strips separator and punctuation runs left dangling at either
// end once the non-ASCII runes are gone.
const trimSet = "-_ ."

// Segment cleans a single path component: drop every rune outside the
// printable 7-bit range, trim leftover punctuation, and fall back to a
// placeholder if nothing survives. The result is always non-empty ASCII.
func Segment(name string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, name)
	clean = strings.Trim(clean, trimSet)
	if clean == "" {
		return Fallback
	}
	return clean
}

// Rel cleans every component of a relative path independently.
func Rel(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = Segment(p)
	}
	return filepath.Join(parts...)
}

// FileName cleans a file name, re-appending the original extension when
// cleaning ate it (a name like "扫描.ima" would otherwise lose its
// type). Names already ending in .dcm keep their single extension.
func FileName(name string) string {
	clean := Segment(name)
	if strings.HasSuffix(strings.ToLower(clean), ".dcm") {
		return clean
	}
	ext := filepath.Ext(name)
	if len(ext) > 1 && !strings.EqualFold(filepath.Ext(clean), ext) {
		clean += ext
	}
	return clean
}
