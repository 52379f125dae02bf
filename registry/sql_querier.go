package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// SQLQuerier is the production Querier for data-query-sql: a thin
// database/sql wrapper over the go-sql-driver/mysql driver. It implements
// Querier so DataQuerySQLDescriptor never imports database/sql directly,
// keeping the contract definition testable without a live database.
type SQLQuerier struct {
	db *sql.DB
}

// NewSQLQuerier opens a MySQL connection pool for the given DSN. The
// connection is opened lazily by database/sql; Open only validates the DSN.
func NewSQLQuerier(dsn string) (*SQLQuerier, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return &SQLQuerier{db: db}, nil
}

// QueryRows runs a read-only query and returns the row count.
func (s *SQLQuerier) QueryRows(ctx context.Context, query string) (int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("scan rows: %w", err)
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (s *SQLQuerier) Close() error { return s.db.Close() }
