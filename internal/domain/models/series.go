package models

import "time"

// Point is one observation of a time series.
type Point struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// TimeSeries is ordered ascending by Time. Validated series carry unique timestamps.
type TimeSeries []Point

// Values returns the observation values in order.
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Span returns the first and last timestamps, or zero times for an empty series.
func (s TimeSeries) Span() (time.Time, time.Time) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}
	}
	return s[0].Time, s[len(s)-1].Time
}

// SeriesRow is the storage shape of one point, used by the ClickHouse series table.
type SeriesRow struct {
	Symbol string
	Source string
	Time   time.Time
	Value  float64
}
