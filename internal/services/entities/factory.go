package entities

import (
	"strings"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
)

// Factory builds primary entities and ranked candidates from bare symbols.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

var _ domrepo.EntityFactory = (*Factory)(nil)

// NewSecurity builds an empty security entity.
func (f *Factory) NewSecurity(symbol string) *models.Security {
	return f.NewPrimary(models.KindSecurity, symbol)
}

// NewPrimary builds an empty entity of the given kind with all maps allocated.
func (f *Factory) NewPrimary(kind models.EntityKind, symbol string) *models.Security {
	return &models.Security{
		Symbol:               NormalizeSymbol(symbol),
		Kind:                 kind,
		SeriesDataDetrended:  make(map[string]models.TimeSeries),
		AllCorrelations:      make(map[string]map[string]float64),
		PositiveCorrelations: make(map[string][]models.CorrelatedCandidate),
		NegativeCorrelations: make(map[string][]models.CorrelatedCandidate),
	}
}

// NewCandidate builds a ranked candidate record.
func (f *Factory) NewCandidate(symbol string, corr float64) models.CorrelatedCandidate {
	return models.CorrelatedCandidate{Symbol: symbol, Correlation: corr}
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
