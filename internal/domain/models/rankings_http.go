package models

// RankingsRequest is the query of GET /api/correlations.
type RankingsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Window string `query:"window" json:"window" default:"2023" validate:"required"`
	Side   string `query:"side" json:"side" default:"positive" validate:"oneof=positive negative"`
	Limit  int    `query:"limit" json:"limit" default:"40" validate:"gte=1,lte=500"`
}

// RankingsResponse wraps a ranked list for the API.
type RankingsResponse struct {
	Symbol     string              `json:"symbol"`
	Window     string              `json:"window"`
	Side       Side                `json:"side"`
	RunID      string              `json:"run_id"`
	Candidates []RankedCorrelation `json:"candidates"`
}
