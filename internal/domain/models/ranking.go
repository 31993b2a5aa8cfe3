package models

import "time"

// Side selects the positively or negatively correlated list.
type Side string

const (
	SidePositive Side = "positive"
	SideNegative Side = "negative"
)

// RankedCorrelation is one persisted row of a ranked list.
type RankedCorrelation struct {
	RunID       string     `json:"run_id" gorm:"column:run_id;type:uuid;index"`
	Symbol      string     `json:"symbol" gorm:"column:symbol;index:idx_rank_lookup,priority:1"`
	Kind        EntityKind `json:"kind" gorm:"column:kind"`
	Window      string     `json:"window" gorm:"column:window_key;index:idx_rank_lookup,priority:2"`
	Side        Side       `json:"side" gorm:"column:side;index:idx_rank_lookup,priority:3"`
	Rank        int        `json:"rank" gorm:"column:rank"`
	Candidate   string     `json:"candidate" gorm:"column:candidate"`
	Correlation float64    `json:"correlation" gorm:"column:correlation"`
	ComputedAt  time.Time  `json:"computed_at" gorm:"column:computed_at;index"`
}

// TableName pins the gorm table name.
func (RankedCorrelation) TableName() string { return "ranked_correlations" }

// FlattenRankings turns the ranked lists of entities into storage rows.
func FlattenRankings(runID string, at time.Time, entities []*Security) []RankedCorrelation {
	var rows []RankedCorrelation
	for _, e := range entities {
		rows = appendSide(rows, runID, at, e, SidePositive, e.PositiveCorrelations)
		rows = appendSide(rows, runID, at, e, SideNegative, e.NegativeCorrelations)
	}
	return rows
}

func appendSide(rows []RankedCorrelation, runID string, at time.Time, e *Security, side Side, lists map[string][]CorrelatedCandidate) []RankedCorrelation {
	for window, list := range lists {
		for i, c := range list {
			rows = append(rows, RankedCorrelation{
				RunID:       runID,
				Symbol:      e.Symbol,
				Kind:        e.Kind,
				Window:      window,
				Side:        side,
				Rank:        i + 1,
				Candidate:   c.Symbol,
				Correlation: c.Correlation,
				ComputedAt:  at,
			})
		}
	}
	return rows
}

// RankingMessage is the published form of one entity's ranked lists.
type RankingMessage struct {
	RunID      string                           `json:"run_id"`
	Symbol     string                           `json:"symbol"`
	Kind       EntityKind                       `json:"kind"`
	ComputedAt time.Time                        `json:"computed_at"`
	Positive   map[string][]CorrelatedCandidate `json:"positive"`
	Negative   map[string][]CorrelatedCandidate `json:"negative"`
}
