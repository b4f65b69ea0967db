package backend

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// DuckDB is the production Backend: an embedded DuckDB session that streams
// from columnar files on disk. The emitted SQL (read_parquet, EXCLUDE,
// INTERVAL arithmetic, reservoir sampling) is DuckDB dialect.
type DuckDB struct {
	db *sql.DB
}

// OpenDuckDB opens an in-memory DuckDB session. Evidence lives in the
// parquet files named by the manifests; nothing is persisted in the session
// itself, so in-memory is the normal mode.
func OpenDuckDB() (*DuckDB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect duckdb: %w", err)
	}
	// One rule execution per session; no concurrent statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &DuckDB{db: db}, nil
}

// QueryCount implements Backend.
func (d *DuckDB) QueryCount(ctx context.Context, query string) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// QueryExceptions implements Backend. All exception rows are counted; only
// the first sampleLimit rows are materialized as the audit sample.
func (d *DuckDB) QueryExceptions(ctx context.Context, query string, sampleLimit int) (int64, []map[string]any, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, nil, err
	}

	var count int64
	var sample []map[string]any
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		count++
		if len(sample) >= sampleLimit {
			continue
		}
		if err := rows.Scan(pointers...); err != nil {
			return 0, nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		sample = append(sample, row)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	return count, sample, nil
}

// DryRun implements Backend using EXPLAIN, which parses and binds the
// statement against the evidence schema without materializing results.
func (d *DuckDB) DryRun(ctx context.Context, query string) ValidationResult {
	rows, err := d.db.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		msg := err.Error()
		return ValidationResult{IsValid: false, Kind: Classify(msg), Message: msg}
	}
	rows.Close()
	return ValidationResult{IsValid: true}
}

// Close implements Backend.
func (d *DuckDB) Close() error {
	return d.db.Close()
}
