package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemill/casemill/internal/config"
)

func TestDecompress_FallsBackToCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "IM0001.dcm")
	dest := filepath.Join(dir, "out", "IM0001.dcm")
	require.NoError(t, os.WriteFile(src, []byte("raw dicom bytes"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))

	cfg := config.Default()
	cfg.DcmdjpegCmd = "false" // always fails, forcing the copy path

	err := Decompress(&cfg).Apply(context.Background(), src, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "raw dicom bytes", string(data))
}

func TestDecompress_ToolSuccessSkipsCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "IM0001.dcm")
	dest := filepath.Join(dir, "IM0001.out.dcm")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	cfg := config.Default()
	cfg.DcmdjpegCmd = "true" // succeeds without writing anything

	require.NoError(t, Decompress(&cfg).Apply(context.Background(), src, dest))
	assert.NoFileExists(t, dest)
}

func TestDecompress_MissingSourceFails(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DcmdjpegCmd = "false"

	err := Decompress(&cfg).Apply(context.Background(),
		filepath.Join(dir, "absent.dcm"), filepath.Join(dir, "out.dcm"))
	assert.Error(t, err)
}

func TestConvert_CreatesDestinationDir(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "series")

	cfg := config.Default()
	cfg.Dcm2niixCmd = "true"

	require.NoError(t, Convert(&cfg).Apply(context.Background(), dir, dest))
	assert.DirExists(t, dest)
}

func TestConvert_ToolFailureSurfacesStderr(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dcm2niixCmd = "sh"

	// With cfg.Dcm2niixCmd = sh, the fixed argument list is nonsense and
	// sh exits non-zero with a diagnostic.
	err := Convert(&cfg).Apply(context.Background(), dir, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dcm2niix")
}

func TestWindowAndResample_ToolFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.C3dCmd = "false"

	err := Window(&cfg).Apply(context.Background(),
		filepath.Join(dir, "in.nii.gz"), filepath.Join(dir, "out.nii.gz"))
	assert.Error(t, err)

	err = Resample(&cfg).Apply(context.Background(),
		filepath.Join(dir, "in.nii.gz"), filepath.Join(dir, "out.nii.gz"))
	assert.Error(t, err)
}

func TestFormatHU(t *testing.T) {
	assert.Equal(t, "-50", formatHU(-50))
	assert.Equal(t, "800", formatHU(800))
	assert.Equal(t, "-50.5", formatHU(-50.5))
}
