package models

// EntityKind tags what a primary entity represents.
type EntityKind string

const (
	KindSecurity   EntityKind = "security"
	KindFredSeries EntityKind = "fred_series"
)

// IsValid reports whether k is a known kind.
func (k EntityKind) IsValid() bool {
	return k == KindSecurity || k == KindFredSeries
}

// Security is a primary entity: the subject whose correlated candidates are ranked.
// Macro series share the type and are told apart by Kind.
type Security struct {
	Symbol string
	Kind   EntityKind

	// SeriesDataDetrended maps analysis window -> detrended series.
	SeriesDataDetrended map[string]TimeSeries

	// AllCorrelations maps window -> candidate symbol -> coefficient. Populated by the
	// engine, drained by the reducer; a drained window holds a nil map.
	AllCorrelations map[string]map[string]float64

	PositiveCorrelations map[string][]CorrelatedCandidate
	NegativeCorrelations map[string][]CorrelatedCandidate
}

// CorrelatedCandidate is a ranked candidate with its coefficient.
type CorrelatedCandidate struct {
	Symbol      string  `json:"symbol"`
	Correlation float64 `json:"correlation"`
}

// CandidateRef identifies a candidate for identity checks against a primary entity.
// Candidate symbols in the universe are always securities.
type CandidateRef struct {
	Kind   EntityKind
	Symbol string
}

// Matches reports whether the candidate is this very entity: same kind and same symbol.
func (s *Security) Matches(c CandidateRef) bool {
	return s.Kind == c.Kind && s.Symbol == c.Symbol
}

// Key identifies an entity inside a deduplicated set.
func (s *Security) Key() string {
	return string(s.Kind) + ":" + s.Symbol
}

// SetCorrelation records a coefficient, creating the window map if needed.
func (s *Security) SetCorrelation(window, symbol string, corr float64) {
	if s.AllCorrelations == nil {
		s.AllCorrelations = make(map[string]map[string]float64)
	}
	m := s.AllCorrelations[window]
	if m == nil {
		m = make(map[string]float64)
		s.AllCorrelations[window] = m
	}
	m[symbol] = corr
}
