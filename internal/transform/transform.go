// Package transform builds the external-tool collaborators the stages
// invoke: DICOM decompression (dcmdjpeg), DICOM-to-NIfTI conversion
// (dcm2niix), and the c3d intensity-window and resample operations.
// Each constructor closes over the immutable run configuration and
// returns a stage.Transform; the pipeline never cares what runs
// underneath, only whether the unit succeeded and its output exists.
package transform

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/stage"
	"github.com/casemill/casemill/internal/toolexec"
)

// stderrTail bounds how much tool output ends up in a unit error.
const stderrTail = 5

func timeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.ToolTimeout)
}

func unitErr(tool string, res toolexec.Result) error {
	tail := toolexec.Tail(res.Stderr, stderrTail)
	if len(tail) == 0 {
		return fmt.Errorf("%s: %w", tool, res.Err)
	}
	return fmt.Errorf("%s: %w (%s)", tool, res.Err, tail[len(tail)-1])
}

// Decompress returns the decompress-stage transform: dcmdjpeg src dest,
// falling back to a plain byte copy when dcmdjpeg cannot handle the
// file (uncompressed and implicit-VR studies make dcmdjpeg exit
// non-zero; the copy preserves them unchanged).
func Decompress(cfg *config.Config) stage.Transform {
	return stage.TransformFunc(func(ctx context.Context, src, dest string) error {
		res := toolexec.Run(ctx, timeout(cfg), cfg.DcmdjpegCmd, src, dest)
		if res.OK() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := copyFile(src, dest); err != nil {
			return fmt.Errorf("dcmdjpeg failed and copy fallback failed: %w", err)
		}
		return nil
	})
}

// Convert returns the convert-stage transform: dcm2niix over a study
// directory, emitting compressed volumes plus BIDS sidecars into dest.
func Convert(cfg *config.Config) stage.Transform {
	return stage.TransformFunc(func(ctx context.Context, src, dest string) error {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		res := toolexec.Run(ctx, timeout(cfg), cfg.Dcm2niixCmd,
			"-f", "%i_%p_%t_%s",
			"-z", "y",
			"-b", "y",
			"-v", "n",
			"-o", dest,
			src,
		)
		if !res.OK() {
			return unitErr("dcm2niix", res)
		}
		return nil
	})
}

// Window returns the window-stage transform: clamp voxel intensities to
// the configured Hounsfield range.
func Window(cfg *config.Config) stage.Transform {
	lo := formatHU(cfg.HUMin)
	hi := formatHU(cfg.HUMax)
	return stage.TransformFunc(func(ctx context.Context, src, dest string) error {
		res := toolexec.Run(ctx, timeout(cfg), cfg.C3dCmd,
			src,
			"-clip", lo, hi,
			"-o", dest,
		)
		if !res.OK() {
			return unitErr("c3d", res)
		}
		return nil
	})
}

// Resample returns the resample-stage transform: cubic resampling to
// the configured isotropic spacing, padding with the window floor.
func Resample(cfg *config.Config) stage.Transform {
	sp := strconv.FormatFloat(cfg.SpacingMM, 'g', -1, 64)
	grid := fmt.Sprintf("%sx%sx%smm", sp, sp, sp)
	return stage.TransformFunc(func(ctx context.Context, src, dest string) error {
		res := toolexec.Run(ctx, timeout(cfg), cfg.C3dCmd,
			src,
			"-background", formatHU(cfg.HUMin),
			"-interpolation", "Cubic",
			"-resample-mm", grid,
			"-o", dest,
		)
		if !res.OK() {
			return unitErr("c3d", res)
		}
		return nil
	})
}

func formatHU(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// copyFile copies src to dest without preserving metadata beyond mode
// 0644. Used only as the decompress fallback.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
