package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemill/casemill/internal/gate"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}

// copyTransform copies src to dest, recording every processed source.
type copyTransform struct {
	mu   sync.Mutex
	seen []string
}

func (c *copyTransform) Apply(_ context.Context, src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.seen = append(c.seen, src)
	c.mu.Unlock()
	return os.WriteFile(dest, data, 0o644)
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	return path
}

func TestDiscoverFiles_SortedAndFiltered(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "b/later.nii.gz")
	touch(t, src, "a/early.nii.gz")
	touch(t, src, "a/skip.json")

	units, err := DiscoverFiles(src, MatchExt(".nii.gz"))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, filepath.Join("a", "early.nii.gz"), units[0].RelPath)
	assert.Equal(t, filepath.Join("b", "later.nii.gz"), units[1].RelPath)
	assert.True(t, filepath.IsAbs(units[0].Path))
}

func TestDiscoverDirs(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "PatientA/Series1/IM0001.dcm")
	touch(t, src, "PatientA/Series2/IM0001.dcm")
	touch(t, src, "PatientB/notes.txt")

	units, err := DiscoverDirs(src, func(dir string) bool {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.dcm"))
		return len(matches) > 0
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, filepath.Join("PatientA", "Series1"), units[0].RelPath)
	assert.Equal(t, filepath.Join("PatientA", "Series2"), units[1].RelPath)
}

func TestDiscoverDirs_RootIsEligible(t *testing.T) {
	src := t.TempDir()
	touch(t, src, "IM0001.dcm")
	touch(t, src, "IM0002.dcm")

	units, err := DiscoverDirs(src, func(dir string) bool {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.dcm"))
		return len(matches) > 0
	})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, ".", units[0].RelPath)
	assert.Equal(t, src, units[0].Path)
}

func TestMatchExt(t *testing.T) {
	m := MatchExt(".nii.gz")
	assert.True(t, m("/data/vol.nii.gz"))
	assert.True(t, m("/data/VOL.NII.GZ"))
	assert.False(t, m("/data/vol.nii"))
	assert.False(t, m("/data/vol.gz"))
}

func newRunner(src, dst string, tr Transform) *Runner {
	return &Runner{
		Name:      "copy",
		DestRoot:  dst,
		Discover:  func() ([]Unit, error) { return DiscoverFiles(src, MatchExt(".nii.gz")) },
		Complete:  gate.Exists,
		Transform: tr,
		Workers:   1,
	}
}

func TestRunner_ProcessesThenSkips(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	touch(t, src, "PatientA/v.nii.gz")
	touch(t, src, "PatientB/v.nii.gz")

	tr := &copyTransform{}
	r := newRunner(src, dst, tr)

	o, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Discovered: 2, Processed: 2}, o)
	assert.FileExists(t, filepath.Join(dst, "PatientA", "v.nii.gz"))

	// Second run with unchanged sources is a no-op.
	o, err = r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Discovered: 2, Skipped: 2}, o)
	assert.Len(t, tr.seen, 2)
}

func TestRunner_ForceReprocesses(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	touch(t, src, "v.nii.gz")

	tr := &copyTransform{}
	r := newRunner(src, dst, tr)
	_, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)

	r.Force = true
	o, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Processed)
	assert.Len(t, tr.seen, 2)
}

func TestRunner_MissingOutputIsReprocessed(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	touch(t, src, "a/v.nii.gz")
	touch(t, src, "b/v.nii.gz")

	tr := &copyTransform{}
	r := newRunner(src, dst, tr)
	_, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dst, "a", "v.nii.gz")))

	o, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Discovered: 2, Processed: 1, Skipped: 1}, o)
}

func TestRunner_UnitFailureIsIsolated(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	touch(t, src, "bad/v.nii.gz")
	touch(t, src, "good/v.nii.gz")

	inner := &copyTransform{}
	tr := TransformFunc(func(ctx context.Context, src, dest string) error {
		if strings.Contains(src, "bad") {
			return errors.New("tool exited with status 3")
		}
		return inner.Apply(ctx, src, dest)
	})

	r := newRunner(src, dst, tr)
	o, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Discovered: 2, Processed: 1, Failed: 1}, o)
	assert.FileExists(t, filepath.Join(dst, "good", "v.nii.gz"))

	// The failed unit stays eligible: next run retries only it.
	o, err = r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Failed+o.Processed)
	assert.Equal(t, 1, o.Skipped)
}

func TestRunner_DestForRemapsDestination(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	touch(t, src, "Pätient/v.nii.gz")

	r := newRunner(src, dst, &copyTransform{})
	r.DestFor = func(rel string) string { return strings.ReplaceAll(rel, "ä", "a") }

	_, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dst, "Patient", "v.nii.gz"))
}

func TestRunner_CancelledContextStops(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	touch(t, src, "v.nii.gz")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRunner(src, dst, &copyTransform{})
	_, err := r.Run(ctx, nopLogger{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_ParallelWorkers(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		touch(t, src, name+"/v.nii.gz")
	}

	tr := &copyTransform{}
	r := newRunner(src, dst, tr)
	r.Workers = 4

	o, err := r.Run(context.Background(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 4, o.Processed)
	assert.Len(t, tr.seen, 4)
}
