package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
	pkgch "CorrPull/pkg/clickhouse"
	pkgpg "CorrPull/pkg/postgres"
)

func TestCHSeriesStoreQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewCHSeriesStore(pkgch.NewClientFromDB(db), nil)

	mock.ExpectQuery(`SELECT t, v\s+FROM series_points FINAL`).
		WithArgs("AAPL", "yahoo", day(0), day(30)).
		WillReturnRows(sqlmock.NewRows([]string{"t", "v"}).AddRow(day(1), 1.0).AddRow(day(2), 2.0))

	s, err := store.Query(context.Background(), "AAPL", "yahoo", day(0), day(30))
	require.NoError(t, err)
	assert.Equal(t, models.TimeSeries{{Time: day(1), Value: 1}, {Time: day(2), Value: 2}}, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHSeriesStoreQueryEmptyIsNoData(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewCHSeriesStore(pkgch.NewClientFromDB(db), nil)

	mock.ExpectQuery(`FROM series_points`).WillReturnRows(sqlmock.NewRows([]string{"t", "v"}))
	_, err = store.Query(context.Background(), "NONE", "yahoo", day(0), day(30))
	assert.ErrorIs(t, err, domrepo.ErrNoData)
}

func TestCHSeriesStoreStoreAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewCHSeriesStore(pkgch.NewClientFromDB(db), nil)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO series_points (symbol, source, t, v) VALUES (?, ?, ?, ?),(?, ?, ?, ?)")).
		WithArgs("AAPL", "yahoo", day(1), 1.0, "AAPL", "yahoo", day(2), 2.0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT DISTINCT symbol FROM series_points`).
		WithArgs("yahoo").
		WillReturnRows(sqlmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("MSFT"))

	require.NoError(t, store.StoreSeries(context.Background(), "AAPL", "yahoo", models.TimeSeries{{Time: day(1), Value: 1}, {Time: day(2), Value: 2}}))
	syms, err := store.ListSymbols(context.Background(), "yahoo")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sampleRows(at time.Time) []models.RankedCorrelation {
	return []models.RankedCorrelation{
		{RunID: "r1", Symbol: "SPY", Kind: models.KindSecurity, Window: "2023", Side: models.SidePositive, Rank: 1, Candidate: "QQQ", Correlation: 0.9, ComputedAt: at},
	}
}

func TestCHResultStoreRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewCHResultStore(pkgch.NewClientFromDB(db))
	at := day(10)

	mock.ExpectExec(`INSERT INTO ranked_correlations`).
		WithArgs("r1", "SPY", "security", "2023", "positive", 1, "QQQ", 0.9, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM ranked_correlations`).
		WithArgs("SPY", "2023", "positive", "SPY", "2023", "positive", 10).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "symbol", "kind", "window_key", "side", "rank", "candidate", "correlation", "computed_at"}).
			AddRow("r1", "SPY", "security", "2023", "positive", 1, "QQQ", 0.9, at))

	require.NoError(t, store.SaveRankings(context.Background(), sampleRows(at)))
	got, err := store.LatestRankings(context.Background(), "SPY", "2023", models.SidePositive, 10)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(at), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newGormMock(t *testing.T) (*pkgpg.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return pkgpg.NewClientFromGorm(gdb), mock
}

func TestPGResultStoreSave(t *testing.T) {
	client, mock := newGormMock(t)
	store := NewPGResultStore(client)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "ranked_correlations"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveRankings(context.Background(), sampleRows(day(10))))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStoreLatest(t *testing.T) {
	client, mock := newGormMock(t)
	store := NewPGResultStore(client)
	at := day(10)

	mock.ExpectQuery(`SELECT \* FROM "ranked_correlations" WHERE symbol = .+ORDER BY rank ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "symbol", "kind", "window_key", "side", "rank", "candidate", "correlation", "computed_at"}).
			AddRow("r1", "SPY", "security", "2023", "positive", 1, "QQQ", 0.9, at))

	got, err := store.LatestRankings(context.Background(), "SPY", "2023", models.SidePositive, 5)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(at), got)
}

func TestPGResultStoreSaveEmptyIsNoop(t *testing.T) {
	client, mock := newGormMock(t)
	require.NoError(t, NewPGResultStore(client).SaveRankings(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
