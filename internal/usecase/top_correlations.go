package usecase

import (
	"cmp"
	"math"
	"slices"

	"CorrPull/internal/domain/models"
	drepo "CorrPull/internal/domain/repository"
)

const DefaultTopN = 40

// DefaultRankWindows are ranked when the caller passes no window list.
var DefaultRankWindows = []string{"2010", "2018", "2021", "2022", "2023"}

// TopCorrelations turns raw correlation maps into bounded ranked lists.
type TopCorrelations struct {
	factory drepo.EntityFactory
	metrics drepo.Metrics
}

func NewTopCorrelations(factory drepo.EntityFactory, metrics drepo.Metrics) *TopCorrelations {
	return &TopCorrelations{factory: factory, metrics: orNoop(metrics)}
}

type scored struct {
	symbol string
	corr   float64
}

// RankAndPrune appends the topN strongest positive and negative candidates of
// every window to the entity's ranked lists, then drops the raw map for that
// window. Windows with no correlations are left alone. NaN coefficients never
// rank. Equal coefficients are ordered by symbol.
func (r *TopCorrelations) RankAndPrune(entities []*models.Security, topN int, windows []string) []*models.Security {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if windows == nil {
		windows = DefaultRankWindows
	}

	for _, ent := range entities {
		if ent == nil {
			continue
		}
		for _, w := range windows {
			raw := ent.AllCorrelations[w]
			if len(raw) == 0 {
				continue
			}

			ranked := make([]scored, 0, len(raw))
			for sym, c := range raw {
				if math.IsNaN(c) {
					continue
				}
				ranked = append(ranked, scored{symbol: sym, corr: c})
			}

			slices.SortFunc(ranked, func(a, b scored) int {
				if c := cmp.Compare(b.corr, a.corr); c != 0 {
					return c
				}
				return cmp.Compare(a.symbol, b.symbol)
			})
			pos := r.materialize(ranked[:min(topN, len(ranked))])

			slices.SortFunc(ranked, func(a, b scored) int {
				if c := cmp.Compare(a.corr, b.corr); c != 0 {
					return c
				}
				return cmp.Compare(a.symbol, b.symbol)
			})
			neg := r.materialize(ranked[:min(topN, len(ranked))])

			if ent.PositiveCorrelations == nil {
				ent.PositiveCorrelations = make(map[string][]models.CorrelatedCandidate)
			}
			if ent.NegativeCorrelations == nil {
				ent.NegativeCorrelations = make(map[string][]models.CorrelatedCandidate)
			}
			ent.PositiveCorrelations[w] = append(ent.PositiveCorrelations[w], pos...)
			ent.NegativeCorrelations[w] = append(ent.NegativeCorrelations[w], neg...)

			ent.AllCorrelations[w] = nil

			r.metrics.RecordRanked(string(models.SidePositive), len(pos))
			r.metrics.RecordRanked(string(models.SideNegative), len(neg))
		}
	}
	return entities
}

func (r *TopCorrelations) materialize(list []scored) []models.CorrelatedCandidate {
	out := make([]models.CorrelatedCandidate, 0, len(list))
	for _, s := range list {
		out = append(out, r.factory.NewCandidate(s.symbol, s.corr))
	}
	return out
}
