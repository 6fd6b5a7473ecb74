package audit

import (
	"context"
	"fmt"
	"io"
	"os"

	"venuebook/internal/model"

	"github.com/rs/zerolog"
)

// Exporter writes every table of a TableExporter into one workbook, a sheet per table.
type Exporter struct {
	tables TableExporter
	writer func() ExcelWriter
	logger *zerolog.Logger
}

// NewExporter builds an exporter. A nil writerFactory uses excelize.
func NewExporter(tables TableExporter, writerFactory func() ExcelWriter, logger *zerolog.Logger) *Exporter {
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{tables: tables, writer: writerFactory, logger: logger}
}

// Export writes the workbook to w. A table that cannot be read aborts the export.
func (e *Exporter) Export(ctx context.Context, w io.Writer) error {
	names, err := e.tables.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	excel := e.writer()
	defer excel.Close()

	for _, name := range names {
		data, columns, err := e.tables.GetTableData(ctx, name)
		if err != nil {
			return fmt.Errorf("get table %s: %w", name, err)
		}

		if err := excel.AddSheet(name); err != nil {
			return err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return fmt.Errorf("write %s header: %w", name, err)
		}

		for _, row := range data {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := excel.WriteRow(values); err != nil {
				return fmt.Errorf("write %s row: %w", name, err)
			}
		}

		e.logger.Debug().Str("table", name).Int("rows", len(data)).Msg("Exported table")
	}

	if err := excel.Save(w); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

// ExportToFile writes the workbook to path.
func (e *Exporter) ExportToFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.Export(ctx, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.logger.Info().Str("path", path).Msg("Audit export written")
	return nil
}

// BookingSource is the read side of the booking store.
type BookingSource interface {
	GetAllBookings() []model.Booking
	GetLogs() []model.LogEntry
}

// StoreTables exposes a BookingSource as the bookings and booking_log tables.
type StoreTables struct {
	Source BookingSource
}

// GetTableNames implements TableExporter.
func (t StoreTables) GetTableNames(ctx context.Context) ([]string, error) {
	return []string{"bookings", "booking_log"}, nil
}

// GetTableData implements TableExporter. Absent values are empty cells.
func (t StoreTables) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	switch tableName {
	case "bookings":
		bookings := t.Source.GetAllBookings()
		rows := make([]map[string]any, 0, len(bookings))
		for i := range bookings {
			rows = append(rows, rowMap(model.BookingColumns, bookings[i].Row()))
		}
		return rows, model.BookingColumns, nil
	case "booking_log":
		logs := t.Source.GetLogs()
		rows := make([]map[string]any, 0, len(logs))
		for i := range logs {
			rows = append(rows, rowMap(model.LogColumns, logs[i].Row()))
		}
		return rows, model.LogColumns, nil
	default:
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}
}

func rowMap(columns, values []string) map[string]any {
	m := make(map[string]any, len(columns))
	for i, c := range columns {
		m[c] = values[i]
	}
	return m
}
