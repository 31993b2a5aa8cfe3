package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
	pkgpg "CorrPull/pkg/postgres"
)

// PGResultStore keeps ranked lists in PostgreSQL through gorm.
type PGResultStore struct {
	client *pkgpg.Client
}

var _ domrepo.ResultStore = (*PGResultStore)(nil)

func NewPGResultStore(client *pkgpg.Client) *PGResultStore {
	return &PGResultStore{client: client}
}

// Migrate creates the rankings table.
func (s *PGResultStore) Migrate() error {
	return s.client.Migrate(&models.RankedCorrelation{})
}

func (s *PGResultStore) SaveRankings(ctx context.Context, rows []models.RankedCorrelation) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("save rankings: %w", err)
	}
	return nil
}

func (s *PGResultStore) LatestRankings(ctx context.Context, symbol, window string, side models.Side, limit int) ([]models.RankedCorrelation, error) {
	db := s.client.DB().WithContext(ctx)

	latest := db.Model(&models.RankedCorrelation{}).
		Select("max(computed_at)").
		Where("symbol = ? AND window_key = ? AND side = ?", symbol, window, side)

	var out []models.RankedCorrelation
	err := db.
		Where("symbol = ? AND window_key = ? AND side = ? AND computed_at = (?)", symbol, window, side, latest).
		Order("rank ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("latest rankings: %w", err)
	}
	return out, nil
}

func (s *PGResultStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}
