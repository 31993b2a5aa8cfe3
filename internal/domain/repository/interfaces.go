package repository

import (
	"context"
	"errors"
	"time"

	"CorrPull/internal/domain/models"
)

// ErrNoData signals that a symbol has no retrievable series for the requested
// window and source. Callers skip the symbol; it is not a failure.
var ErrNoData = errors.New("no data available")

// SeriesSource returns validated series ready for correlation.
type SeriesSource interface {
	FetchValidatedSeries(ctx context.Context, symbol, window string, endDate time.Time, source string, forceDownload, useAlternateStore bool) (models.TimeSeries, error)
}

// SeriesProvider downloads raw series from an upstream data vendor.
type SeriesProvider interface {
	Download(ctx context.Context, symbol, source string, from, to time.Time) (models.TimeSeries, error)
}

// SeriesStore is the alternate (database-backed) series store.
type SeriesStore interface {
	Query(ctx context.Context, symbol, source string, from, to time.Time) (models.TimeSeries, error)
	StoreSeries(ctx context.Context, symbol, source string, series models.TimeSeries) error
	ListSymbols(ctx context.Context, source string) ([]string, error)
}

// EntityFactory builds entities from bare symbols.
type EntityFactory interface {
	NewSecurity(symbol string) *models.Security
	NewPrimary(kind models.EntityKind, symbol string) *models.Security
	NewCandidate(symbol string, corr float64) models.CorrelatedCandidate
}

// ResultStore persists and serves ranked correlation lists.
type ResultStore interface {
	SaveRankings(ctx context.Context, rows []models.RankedCorrelation) error
	LatestRankings(ctx context.Context, symbol, window string, side models.Side, limit int) ([]models.RankedCorrelation, error)
	Health(ctx context.Context) error
}

// ResultPublisher announces ranked lists to downstream consumers.
type ResultPublisher interface {
	PublishRankings(ctx context.Context, msgs []models.RankingMessage) error
	Close() error
}

type Metrics interface {
	RecordFetch(source, result string)
	RecordSkip(reason string)
	RecordCorrelations(window string, n int)
	RecordRanked(side string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
