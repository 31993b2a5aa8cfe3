package features

import (
	"errors"
	"math"

	"CorrPull/internal/domain/models"
)

// ErrIncompatibleSeries means two series cannot be aligned at all, e.g. one is empty.
var ErrIncompatibleSeries = errors.New("incompatible series shape")

// Align inner-joins two series on timestamp and returns the paired values in
// primary order. Timestamps present in only one series are dropped. If a
// timestamp repeats, its first occurrence wins.
func Align(primary, candidate models.TimeSeries) (xs, ys []float64) {
	idx := make(map[int64]float64, len(candidate))
	for _, p := range candidate {
		k := p.Time.UnixNano()
		if _, seen := idx[k]; !seen {
			idx[k] = p.Value
		}
	}

	n := min(len(primary), len(candidate))
	xs = make([]float64, 0, n)
	ys = make([]float64, 0, n)
	used := make(map[int64]struct{}, n)
	for _, p := range primary {
		k := p.Time.UnixNano()
		v, ok := idx[k]
		if !ok {
			continue
		}
		if _, dup := used[k]; dup {
			continue
		}
		used[k] = struct{}{}
		xs = append(xs, p.Value)
		ys = append(ys, v)
	}
	return xs, ys
}

const varianceTolerance = 1e-12

// Pearson returns the sample Pearson correlation of xs and ys.
// Fewer than two pairs, mismatched lengths or zero variance yield NaN.
// Variance at rounding level relative to the raw magnitude counts as zero.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return math.NaN()
	}

	var mx, my float64
	for i := 0; i < n; i++ {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxx, syy, sxy, qx, qy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
		qx += xs[i] * xs[i]
		qy += ys[i] * ys[i]
	}
	if sxx <= varianceTolerance*qx || syy <= varianceTolerance*qy {
		return math.NaN()
	}

	r := sxy / math.Sqrt(sxx*syy)
	// clamp rounding drift
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}

// CorrelationForSeries aligns a primary detrended series with a candidate
// series on their shared timestamps and returns the Pearson coefficient of the
// overlap. An empty input is ErrIncompatibleSeries; too little overlap is NaN.
func CorrelationForSeries(primary, candidate models.TimeSeries) (float64, error) {
	if len(primary) == 0 || len(candidate) == 0 {
		return math.NaN(), ErrIncompatibleSeries
	}
	xs, ys := Align(primary, candidate)
	return Pearson(xs, ys), nil
}
