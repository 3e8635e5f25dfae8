package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestDecide(t *testing.T) {
	dir := t.TempDir()
	done := writeFile(t, dir, "done.nii.gz", 10)
	missing := filepath.Join(dir, "missing.nii.gz")

	assert.Equal(t, Skip, Decide(done, false, Exists))
	assert.Equal(t, Process, Decide(missing, false, Exists))
	// Force overrides any completeness check.
	assert.Equal(t, Process, Decide(done, true, Exists))
	// The completeness bar decides, not bare existence.
	assert.Equal(t, Process, Decide(done, false, MinSize(1024)))
}

func TestMinSize(t *testing.T) {
	dir := t.TempDir()
	big := writeFile(t, dir, "big.nii.gz", 2048)
	small := writeFile(t, dir, "truncated.nii.gz", 100)
	empty := writeFile(t, dir, "empty.nii.gz", 0)

	pred := MinSize(1024)
	assert.True(t, pred(big))
	assert.False(t, pred(small))
	assert.False(t, pred(empty))
	assert.False(t, pred(filepath.Join(dir, "absent.nii.gz")))
	// Directories never satisfy a file-size bar.
	assert.False(t, pred(dir))
}

func TestDirContains(t *testing.T) {
	dir := t.TempDir()
	converted := filepath.Join(dir, "converted")
	require.NoError(t, os.MkdirAll(converted, 0o755))

	pred := DirContains("*.nii.gz")
	// Directory exists but holds no artifact yet: a crashed prior run.
	assert.False(t, pred(converted))

	writeFile(t, converted, "sidecar.json", 10)
	assert.False(t, pred(converted))

	writeFile(t, converted, "series_1.nii.gz", 10)
	assert.True(t, pred(converted))

	assert.False(t, pred(filepath.Join(dir, "never_created")))
	// A file destination is not a usable directory.
	f := writeFile(t, dir, "afile", 1)
	assert.False(t, pred(f))
}
