// Package gate implements the per-stage skip/process decision. The
// decision is a pure function of on-disk state at call time: nothing
// here mutates the filesystem.
package gate

import (
	"os"
	"path/filepath"
)

// Decision is the outcome of the gate for one unit.
type Decision int

const (
	// Process means the destination is absent, stale, or below the
	// stage's completeness bar and must be (re)generated.
	Process Decision = iota
	// Skip means the destination already satisfies the stage's
	// completeness predicate.
	Skip
)

// Completeness reports whether an existing destination counts as
// "already done" for a stage. Predicates differ per stage on purpose:
// a half-written output from a crashed run must fail its stage's bar so
// the unit is retried on the next run.
type Completeness func(dest string) bool

// Decide returns Skip iff force is false and dest satisfies complete.
func Decide(dest string, force bool, complete Completeness) Decision {
	if force {
		return Process
	}
	if complete(dest) {
		return Skip
	}
	return Process
}

// Exists is the weakest completeness bar: the destination path exists.
func Exists(dest string) bool {
	_, err := os.Stat(dest)
	return err == nil
}

// MinSize requires the destination to be a regular file strictly larger
// than threshold bytes. Catches zero-byte and truncated outputs.
func MinSize(threshold int64) Completeness {
	return func(dest string) bool {
		fi, err := os.Stat(dest)
		return err == nil && fi.Mode().IsRegular() && fi.Size() > threshold
	}
}

// DirContains requires the destination directory to hold at least one
// entry matching the glob pattern (non-recursive). Used for stages whose
// transform emits files with names the stage cannot predict.
func DirContains(pattern string) Completeness {
	return func(dest string) bool {
		if fi, err := os.Stat(dest); err != nil || !fi.IsDir() {
			return false
		}
		matches, err := filepath.Glob(filepath.Join(dest, pattern))
		return err == nil && len(matches) > 0
	}
}
