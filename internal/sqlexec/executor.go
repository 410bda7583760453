package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/finchat/internal/storage"
)

// ErrDenied is returned when a statement is rejected by the safety filter
// before reaching the database.
var ErrDenied = errors.New("statement rejected by safety filter")

const executeTimeout = 15 * time.Second

// denylist holds tokens whose presence anywhere in a statement causes
// rejection. This is a coarse substring check, kept as a first line of
// defense; the real guarantee is the query_only pragma on the connection.
var denylist = []string{"DROP", "DELETE"}

// Executor runs generated SQL against the data database. The database holds
// only tables materialized from uploads, and the connection is opened in
// query-only mode, so even a statement that slips past the denylist cannot
// write.
type Executor struct {
	db *sql.DB
}

// Open opens the data database in dataDir in query-only mode and returns an
// Executor over it. The query_only pragma is part of the DSN, so it holds on
// every connection the pool opens.
func Open(dataDir string) (*Executor, error) {
	db, err := storage.OpenDataQueryOnly(dataDir)
	if err != nil {
		return nil, err
	}
	return &Executor{db: db}, nil
}

// NewExecutor wraps an existing connection. The caller is responsible for
// any read-only guarantees on it; the denylist still applies.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Close closes the underlying connection.
func (e *Executor) Close() error {
	return e.db.Close()
}

// IsDenied reports whether the statement contains a denylisted token,
// case-insensitively.
func IsDenied(query string) bool {
	upper := strings.ToUpper(query)
	for _, token := range denylist {
		if strings.Contains(upper, token) {
			return true
		}
	}
	return false
}

// Execute runs the statement and returns all rows as ordered column→value
// maps. Denylisted statements are rejected without touching the database.
// Zero rows from a valid query is a success, not an error.
func (e *Executor) Execute(ctx context.Context, query string) ([]map[string]any, error) {
	if IsDenied(query) {
		return nil, fmt.Errorf("%w: %q", ErrDenied, query)
	}

	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// database/sql hands back []byte for TEXT columns on some
			// drivers; normalize to string for JSON and prompt rendering.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
