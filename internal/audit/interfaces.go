// Package audit exports the booking tables to an Excel workbook.
package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides access to booking tables for export.
type TableExporter interface {
	// GetTableNames returns list of table names to export.
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows for a table as maps.
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// GenerateFilename creates a filename like "bookings_2026-03.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("bookings_%s.xlsx", t.Format("2006-01"))
}
