// Package stats computes intensity statistics over NIfTI volumes: the
// global mean/std recomputed after every run, and the per-dataset HU
// distribution report behind the analyze command.
package stats

import (
	"math"
	"sort"

	"github.com/casemill/casemill/internal/nifti"
)

// tissueFloor excludes air background from the foreground mean. Air in
// CT sits around -1000 HU.
const tissueFloor = -900.0

// Accumulator aggregates running sums for a streaming mean/std.
type Accumulator struct {
	sum   float64
	sumSq float64
	n     int64
}

// Add folds one intensity into the accumulator.
func (a *Accumulator) Add(v float64) {
	a.sum += v
	a.sumSq += v * v
	a.n++
}

// Count returns the number of values accumulated so far.
func (a *Accumulator) Count() int64 { return a.n }

// Mean returns the arithmetic mean, or 0 for an empty accumulator.
func (a *Accumulator) Mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

// Std returns the population standard deviation.
func (a *Accumulator) Std() float64 {
	if a.n == 0 {
		return 0
	}
	m := a.Mean()
	v := a.sumSq/float64(a.n) - m*m
	if v < 0 {
		v = 0 // rounding can push a constant volume slightly negative
	}
	return math.Sqrt(v)
}

// FileStats is the HU distribution of a single volume. Percentiles and
// the tissue mean come from subsampled voxels; Min and Max are exact.
type FileStats struct {
	Path       string
	Min        float64
	Max        float64
	P01        float64
	P99        float64
	P995       float64
	TissueMean float64
	HasTissue  bool
}

// AnalyzeFile streams one volume and derives its FileStats. Every
// rate-th voxel feeds the percentile sample; rate < 1 means no
// subsampling.
func AnalyzeFile(path string, rate int) (FileStats, error) {
	if rate < 1 {
		rate = 1
	}
	fs := FileStats{Path: path, Min: math.Inf(1), Max: math.Inf(-1)}

	var sample []float64
	var i int64
	n, err := nifti.Stream(path, func(v float64) {
		if v < fs.Min {
			fs.Min = v
		}
		if v > fs.Max {
			fs.Max = v
		}
		if i%int64(rate) == 0 {
			sample = append(sample, v)
		}
		i++
	})
	if err != nil {
		return fs, err
	}
	if n == 0 {
		fs.Min, fs.Max = 0, 0
		return fs, nil
	}

	sort.Float64s(sample)
	fs.P01 = percentile(sample, 1)
	fs.P99 = percentile(sample, 99)
	fs.P995 = percentile(sample, 99.5)

	var tissueSum float64
	var tissueN int
	for _, v := range sample {
		if v > tissueFloor {
			tissueSum += v
			tissueN++
		}
	}
	if tissueN > 0 {
		fs.TissueMean = tissueSum / float64(tissueN)
		fs.HasTissue = true
	}
	return fs, nil
}

// percentile returns the q-th percentile of an ascending-sorted slice
// using linear interpolation between the two nearest ranks.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Report is the dataset-level summary of per-file distributions, with a
// suggested clipping window derived from the averaged percentiles.
type Report struct {
	Files      int
	AvgMin     float64
	AvgMax     float64
	AvgP01     float64
	AvgP99     float64
	AvgP995    float64
	AvgTissue  float64
	SuggestMin float64
	SuggestMax float64
}

// Summarize averages per-file stats and derives the suggested window:
// the 1% percentile floored to a multiple of 10 minus a 10 HU margin
// (never below -1000), and the 99.5% percentile floored to a multiple
// of 10 plus a 50 HU margin to keep bright vessels.
func Summarize(files []FileStats) Report {
	r := Report{Files: len(files)}
	if len(files) == 0 {
		return r
	}
	var tissueN int
	for _, f := range files {
		r.AvgMin += f.Min
		r.AvgMax += f.Max
		r.AvgP01 += f.P01
		r.AvgP99 += f.P99
		r.AvgP995 += f.P995
		if f.HasTissue {
			r.AvgTissue += f.TissueMean
			tissueN++
		}
	}
	n := float64(len(files))
	r.AvgMin /= n
	r.AvgMax /= n
	r.AvgP01 /= n
	r.AvgP99 /= n
	r.AvgP995 /= n
	if tissueN > 0 {
		r.AvgTissue /= float64(tissueN)
	}

	r.SuggestMin = math.Max(floor10(r.AvgP01)-10, -1000)
	r.SuggestMax = floor10(r.AvgP995) + 50
	return r
}

func floor10(v float64) float64 {
	return math.Floor(v/10) * 10
}
