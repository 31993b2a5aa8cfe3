package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
	pkgch "CorrPull/pkg/clickhouse"
	applogger "CorrPull/pkg/logger"
)

// CHSeriesStore is the alternate series store backed by ClickHouse.
type CHSeriesStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.SeriesStore = (*CHSeriesStore)(nil)

func NewCHSeriesStore(ch *pkgch.Client, l *applogger.Logger) *CHSeriesStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHSeriesStore{db: ch.DB(), table: pkgch.SeriesTable, l: l}
}

func (s *CHSeriesStore) Query(ctx context.Context, symbol, source string, from, to time.Time) (models.TimeSeries, error) {
	q := fmt.Sprintf(`
        SELECT t, v
        FROM %s FINAL
        WHERE symbol = ? AND source = ? AND t >= ? AND t <= ?
        ORDER BY t ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, q, symbol, source, from, to)
	if err != nil {
		s.l.Error("clickhouse series query error",
			applogger.String("symbol", symbol),
			applogger.String("source", source),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	out := make(models.TimeSeries, 0, 256)
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, fmt.Errorf("scan series point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(out) == 0 {
		return nil, domrepo.ErrNoData
	}
	return out, nil
}

// StoreSeries inserts points with multi-row VALUES, chunked to bound statement size.
func (s *CHSeriesStore) StoreSeries(ctx context.Context, symbol, source string, series models.TimeSeries) error {
	const chunkSize = 2000
	for start := 0; start < len(series); start += chunkSize {
		end := min(start+chunkSize, len(series))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*4)
		for _, p := range series[start:end] {
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, symbol, source, p.Time, p.Value)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, source, t, v) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store series %s: %w", symbol, err)
		}
	}
	return nil
}

// ListSymbols returns the distinct symbols stored for source, sorted.
func (s *CHSeriesStore) ListSymbols(ctx context.Context, source string) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol FROM %s WHERE source = ? ORDER BY symbol", s.table)
	rows, err := s.db.QueryContext(ctx, q, source)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
