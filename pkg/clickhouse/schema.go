package clickhouse

import "fmt"

const (
	SeriesTable   = "series_points"
	RankingsTable = "ranked_correlations"
)

// SchemaStatements returns the idempotent DDL for the series store and the
// results table in database db.
func SchemaStatements(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            symbol LowCardinality(String),
            source LowCardinality(String),
            t      DateTime64(3, 'UTC'),
            v      Float64,
            ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
        )
        ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (source, symbol, t)`, db, SeriesTable),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            run_id      String,
            symbol      LowCardinality(String),
            kind        LowCardinality(String),
            window_key  LowCardinality(String),
            side        LowCardinality(String),
            rank        UInt16,
            candidate   String,
            correlation Float64,
            computed_at DateTime64(3, 'UTC')
        )
        ENGINE = MergeTree
        ORDER BY (symbol, window_key, side, computed_at, rank)`, db, RankingsTable),
	}
}
