package features

import "CorrPull/internal/domain/models"

// Detrend removes the least-squares linear trend (value against observation
// index) and returns the residual series on the original timestamps.
func Detrend(s models.TimeSeries) models.TimeSeries {
	n := len(s)
	out := make(models.TimeSeries, n)
	copy(out, s)
	if n < 2 {
		return out
	}

	var sx, sy, sxx, sxy float64
	for i, p := range s {
		x := float64(i)
		sx += x
		sy += p.Value
		sxx += x * x
		sxy += x * p.Value
	}
	fn := float64(n)
	den := fn*sxx - sx*sx
	if den == 0 {
		return out
	}
	slope := (fn*sxy - sx*sy) / den
	intercept := (sy - slope*sx) / fn

	for i := range out {
		out[i].Value = s[i].Value - (intercept + slope*float64(i))
	}
	return out
}
