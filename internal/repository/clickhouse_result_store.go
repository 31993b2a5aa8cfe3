package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
	pkgch "CorrPull/pkg/clickhouse"
)

// CHResultStore keeps ranked lists in ClickHouse.
type CHResultStore struct {
	db    *sql.DB
	table string
}

var _ domrepo.ResultStore = (*CHResultStore)(nil)

func NewCHResultStore(ch *pkgch.Client) *CHResultStore {
	return &CHResultStore{db: ch.DB(), table: pkgch.RankingsTable}
}

func (s *CHResultStore) SaveRankings(ctx context.Context, rows []models.RankedCorrelation) error {
	const chunkSize = 2000
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, r := range rows[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, r.RunID, r.Symbol, string(r.Kind), r.Window, string(r.Side), r.Rank, r.Candidate, r.Correlation, r.ComputedAt)
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (run_id, symbol, kind, window_key, side, rank, candidate, correlation, computed_at) VALUES %s",
			s.table, strings.Join(values, ","),
		)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("save rankings: %w", err)
		}
	}
	return nil
}

// LatestRankings returns the list written by the most recent run for symbol and window.
func (s *CHResultStore) LatestRankings(ctx context.Context, symbol, window string, side models.Side, limit int) ([]models.RankedCorrelation, error) {
	q := fmt.Sprintf(`
        SELECT run_id, symbol, kind, window_key, side, rank, candidate, correlation, computed_at
        FROM %[1]s
        WHERE symbol = ? AND window_key = ? AND side = ?
          AND computed_at = (
              SELECT max(computed_at) FROM %[1]s WHERE symbol = ? AND window_key = ? AND side = ?
          )
        ORDER BY rank ASC
        LIMIT ?`, s.table)

	rows, err := s.db.QueryContext(ctx, q, symbol, window, string(side), symbol, window, string(side), limit)
	if err != nil {
		return nil, fmt.Errorf("latest rankings: %w", err)
	}
	defer rows.Close()

	var out []models.RankedCorrelation
	for rows.Next() {
		var (
			r        models.RankedCorrelation
			kind, sd string
		)
		if err := rows.Scan(&r.RunID, &r.Symbol, &kind, &r.Window, &sd, &r.Rank, &r.Candidate, &r.Correlation, &r.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		r.Kind, r.Side = models.EntityKind(kind), models.Side(sd)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHResultStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
