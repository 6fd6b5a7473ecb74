package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"venuebook/internal/model"
)

// auditTables maps exported tables to their columns, in schema order.
var auditTables = []struct {
	name    string
	columns []string
	order   string
}{
	{name: "bookings", columns: model.BookingColumns, order: "id"},
	{name: "booking_log", columns: model.LogColumns, order: "seq"},
}

// GetTableNames returns the tables exported in audit reports.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(auditTables))
	for _, t := range auditTables {
		names = append(names, t.name)
	}
	return names, nil
}

// GetTableData returns all rows of an audit table as maps keyed by column.
func (db *DB) GetTableData(ctx context.Context, tableName string) (result []map[string]any, columns []string, err error) {
	var order string
	for _, t := range auditTables {
		if t.name == tableName {
			columns, order = t.columns, t.order
			break
		}
	}
	if columns == nil {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(columns, ", "), tableName, order)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if errScan := rows.Scan(valuePtrs...); errScan != nil {
			return nil, nil, errScan
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}

	return result, columns, rows.Err()
}

// Checkpoint folds the WAL into the main database file so it can be copied.
func (db *DB) Checkpoint(ctx context.Context) error {
	_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// GetDB returns the underlying sql.DB.
func (db *DB) GetDB() *sql.DB {
	return db.DB
}
