package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"CorrPull/internal/domain/models"
	drepo "CorrPull/internal/domain/repository"
	"CorrPull/internal/services/entities"
)

const (
	defaultRankingsLimit = DefaultTopN
	maxRankingsLimit     = 500
)

var (
	ErrInvalidQuery     = errors.New("invalid rankings query")
	ErrRankingsNotFound = errors.New("rankings not found")
)

// RankingsUseCase serves the latest ranked lists from the result store.
type RankingsUseCase struct {
	store drepo.ResultStore
}

func NewRankingsUseCase(store drepo.ResultStore) *RankingsUseCase {
	return &RankingsUseCase{store: store}
}

// Get validates q, clamps the limit into [1, 500] and returns the newest list.
func (u *RankingsUseCase) Get(ctx context.Context, q models.RankingsRequest) ([]models.RankedCorrelation, error) {
	symbol := entities.NormalizeSymbol(q.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidQuery)
	}
	if q.Window == "" {
		return nil, fmt.Errorf("%w: window is required", ErrInvalidQuery)
	}

	side := models.Side(strings.ToLower(strings.TrimSpace(q.Side)))
	switch side {
	case "":
		side = models.SidePositive
	case models.SidePositive, models.SideNegative:
	default:
		return nil, fmt.Errorf("%w: side must be positive or negative", ErrInvalidQuery)
	}

	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultRankingsLimit
	case limit > maxRankingsLimit:
		limit = maxRankingsLimit
	}

	if u.store == nil {
		return nil, fmt.Errorf("%w: no result store configured", ErrRankingsNotFound)
	}
	rows, err := u.store.LatestRankings(ctx, symbol, q.Window, side, limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s %s", ErrRankingsNotFound, symbol, q.Window, side)
	}
	return rows, nil
}

// Health reports the result store's reachability.
func (u *RankingsUseCase) Health(ctx context.Context) error {
	if u.store == nil {
		return nil
	}
	return u.store.Health(ctx)
}
