package usecase

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CorrPull/internal/domain/models"
	"CorrPull/internal/services/entities"
)

func withCorrelations(symbol, window string, corr map[string]float64) *models.Security {
	e := entities.NewFactory().NewSecurity(symbol)
	for s, c := range corr {
		e.SetCorrelation(window, s, c)
	}
	return e
}

func symbolsOf(list []models.CorrelatedCandidate) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.Symbol
	}
	return out
}

func TestRankAndPruneOrdersAndBounds(t *testing.T) {
	e := withCorrelations("A", "2023", map[string]float64{
		"P1": 0.9, "P2": 0.5, "P3": 0.1, "N1": -0.8, "N2": -0.3,
	})
	r := NewTopCorrelations(entities.NewFactory(), nil)

	out := r.RankAndPrune([]*models.Security{e}, 2, []string{"2023"})
	require.Len(t, out, 1)

	assert.Equal(t, []string{"P1", "P2"}, symbolsOf(e.PositiveCorrelations["2023"]))
	assert.Equal(t, []string{"N1", "N2"}, symbolsOf(e.NegativeCorrelations["2023"]))
	assert.Nil(t, e.AllCorrelations["2023"])
}

func TestRankAndPruneFewerThanTopN(t *testing.T) {
	e := withCorrelations("A", "2023", map[string]float64{"X": 0.2, "Y": -0.4})
	r := NewTopCorrelations(entities.NewFactory(), nil)

	r.RankAndPrune([]*models.Security{e}, 40, []string{"2023"})

	// both lists contain every candidate, in opposite orders
	assert.Equal(t, []string{"X", "Y"}, symbolsOf(e.PositiveCorrelations["2023"]))
	assert.Equal(t, []string{"Y", "X"}, symbolsOf(e.NegativeCorrelations["2023"]))
}

func TestRankAndPruneDefaults(t *testing.T) {
	corr := map[string]float64{}
	for i := 0; i < 100; i++ {
		corr[fmt.Sprintf("C%03d", i)] = float64(i)/50 - 1
	}
	e := withCorrelations("A", "2021", corr)
	e.SetCorrelation("1999", "OLD", 0.7)
	r := NewTopCorrelations(entities.NewFactory(), nil)

	r.RankAndPrune([]*models.Security{e}, 0, nil)

	assert.Len(t, e.PositiveCorrelations["2021"], DefaultTopN)
	assert.Len(t, e.NegativeCorrelations["2021"], DefaultTopN)
	assert.Equal(t, "C099", e.PositiveCorrelations["2021"][0].Symbol)
	assert.Equal(t, "C000", e.NegativeCorrelations["2021"][0].Symbol)
	// windows outside the default set are untouched
	assert.Equal(t, 0.7, e.AllCorrelations["1999"]["OLD"])
	assert.Empty(t, e.PositiveCorrelations["1999"])
}

func TestRankAndPruneTieBreakBySymbol(t *testing.T) {
	e := withCorrelations("A", "2023", map[string]float64{"ZZ": 0.5, "AA": 0.5, "MM": 0.5})
	r := NewTopCorrelations(entities.NewFactory(), nil)

	r.RankAndPrune([]*models.Security{e}, 2, []string{"2023"})
	assert.Equal(t, []string{"AA", "MM"}, symbolsOf(e.PositiveCorrelations["2023"]))
	assert.Equal(t, []string{"AA", "MM"}, symbolsOf(e.NegativeCorrelations["2023"]))
}

func TestRankAndPruneDropsNaN(t *testing.T) {
	e := withCorrelations("A", "2023", map[string]float64{"X": math.NaN(), "Y": 0.3})
	r := NewTopCorrelations(entities.NewFactory(), nil)

	r.RankAndPrune([]*models.Security{e}, 5, []string{"2023"})
	assert.Equal(t, []string{"Y"}, symbolsOf(e.PositiveCorrelations["2023"]))
	assert.Equal(t, []string{"Y"}, symbolsOf(e.NegativeCorrelations["2023"]))
}

func TestRankAndPruneSkipsMissingWindowAndAppends(t *testing.T) {
	e := withCorrelations("A", "2023", map[string]float64{"X": 0.9})
	e.PositiveCorrelations["2023"] = []models.CorrelatedCandidate{{Symbol: "PREV", Correlation: 0.1}}
	r := NewTopCorrelations(entities.NewFactory(), nil)

	r.RankAndPrune([]*models.Security{e}, 5, []string{"2022", "2023"})

	assert.NotContains(t, e.PositiveCorrelations, "2022")
	assert.Equal(t, []string{"PREV", "X"}, symbolsOf(e.PositiveCorrelations["2023"]))
}

func TestRankAndPruneBoundedAcrossEntities(t *testing.T) {
	var ents []*models.Security
	for _, sym := range []string{"A", "B", "C"} {
		corr := map[string]float64{}
		for i := 0; i < 10; i++ {
			corr[fmt.Sprintf("%s%d", sym, i)] = float64(i) / 10
		}
		ents = append(ents, withCorrelations(sym, "2023", corr))
	}
	r := NewTopCorrelations(entities.NewFactory(), nil)

	r.RankAndPrune(ents, 3, []string{"2023"})
	for _, e := range ents {
		assert.LessOrEqual(t, len(e.PositiveCorrelations["2023"]), 3)
		assert.LessOrEqual(t, len(e.NegativeCorrelations["2023"]), 3)
		assert.Empty(t, e.AllCorrelations["2023"])
	}
}

func TestEngineThenReducerEndToEnd(t *testing.T) {
	src := newFakeSource(map[string]models.TimeSeries{"B": series(2, 4, 6)})
	a := primary("A", "2023", series(1, 2, 3))

	eng := NewCorrelationEngine(src, nil, nil)
	ents, err := eng.ComputeCorrelations(context.Background(), []*models.Security{a}, []string{"B"}, params("2023"))
	require.NoError(t, err)

	ents = NewTopCorrelations(entities.NewFactory(), nil).RankAndPrune(ents, 1, []string{"2023"})
	require.Len(t, ents[0].PositiveCorrelations["2023"], 1)
	assert.Equal(t, "B", ents[0].PositiveCorrelations["2023"][0].Symbol)
	assert.InDelta(t, 1.0, ents[0].PositiveCorrelations["2023"][0].Correlation, 1e-12)
}
