package usecase

import domrepo "CorrPull/internal/domain/repository"

type noopMetrics struct{}

func (noopMetrics) RecordFetch(string, string)     {}
func (noopMetrics) RecordSkip(string)              {}
func (noopMetrics) RecordCorrelations(string, int) {}
func (noopMetrics) RecordRanked(string, int)       {}
func (noopMetrics) RecordError(string)             {}
func (noopMetrics) RecordLatency(string, float64)  {}

func orNoop(m domrepo.Metrics) domrepo.Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
