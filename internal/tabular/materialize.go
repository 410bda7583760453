package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/finchat/internal/catalog"
)

// TableNameFor derives the materialized table name for an upload. UUIDs
// carry dashes, which are not valid in unquoted identifiers.
func TableNameFor(userID, fileID string) string {
	clean := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "-", "_")
	}
	return fmt.Sprintf("user_%s_file_%s", clean(userID), clean(fileID))
}

// Materialize creates the table and bulk-inserts all rows in one transaction.
// An existing table with the same name is replaced, so re-processing an
// upload is idempotent.
func Materialize(ctx context.Context, db *sql.DB, t *Table, td catalog.TableDescriptor) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning materialize transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, td.TableName)); err != nil {
		tx.Rollback()
		return fmt.Errorf("dropping stale table: %w", err)
	}

	cols := make([]string, len(td.Columns))
	for i, c := range td.Columns {
		cols[i] = fmt.Sprintf(`"%s" %s`, c.Name, c.Type)
	}
	createStmt := fmt.Sprintf(`CREATE TABLE "%s" (%s)`, td.TableName, strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		tx.Rollback()
		return fmt.Errorf("creating table %s: %w", td.TableName, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(td.Columns)), ",")
	insertStmt := fmt.Sprintf(`INSERT INTO "%s" VALUES (%s)`, td.TableName, placeholders)
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		args := make([]any, len(td.Columns))
		for j, c := range td.Columns {
			args[j] = typedValue(row[j], c.Type)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// typedValue converts a string cell to the column's SQLite type. Empty cells
// and unparseable values become NULL rather than failing the whole upload.
func typedValue(v, colType string) any {
	if v == "" {
		return nil
	}
	switch colType {
	case "INTEGER":
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case "REAL":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return v
	}
}
