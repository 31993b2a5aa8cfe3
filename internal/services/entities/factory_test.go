package entities

import (
	"testing"

	"CorrPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestNewPrimaryAllocatesMaps(t *testing.T) {
	e := NewFactory().NewPrimary(models.KindFredSeries, " dgs10 ")

	assert.Equal(t, "DGS10", e.Symbol)
	assert.Equal(t, models.KindFredSeries, e.Kind)
	assert.NotNil(t, e.SeriesDataDetrended)
	assert.NotNil(t, e.AllCorrelations)
	assert.NotNil(t, e.PositiveCorrelations)
	assert.NotNil(t, e.NegativeCorrelations)
}

func TestMatchesUsesKindAndSymbol(t *testing.T) {
	f := NewFactory()
	sec := f.NewSecurity("SPY")
	macro := f.NewPrimary(models.KindFredSeries, "SPY")

	ref := models.CandidateRef{Kind: models.KindSecurity, Symbol: "SPY"}
	assert.True(t, sec.Matches(ref))
	assert.False(t, macro.Matches(ref))
	assert.False(t, sec.Matches(models.CandidateRef{Kind: models.KindSecurity, Symbol: "QQQ"}))
}
