package repository

import (
	"math"
	"sort"
	"time"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
)

// ValidateSeries normalises raw series for correlation: ascending by time,
// finite values only, one point per timestamp (the last one wins) and clipped
// to [from, to]. An empty result is domrepo.ErrNoData.
func ValidateSeries(raw models.TimeSeries, from, to time.Time) (models.TimeSeries, error) {
	pts := make(models.TimeSeries, 0, len(raw))
	for _, p := range raw {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		if p.Time.Before(from) || (!to.IsZero() && p.Time.After(to)) {
			continue
		}
		pts = append(pts, models.Point{Time: p.Time.UTC(), Value: p.Value})
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })

	out := pts[:0]
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, domrepo.ErrNoData
	}
	return out, nil
}
