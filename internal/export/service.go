// Package export streams every page of a query to CSV or XLSX.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/logger"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet XLSX exports are written to.
const SheetName = "Sheet1"

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", name)
}

// Service exports query results of one entity.
type Service struct {
	dao      *dao.Dao
	log      *logger.Logger
	pageSize int
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets how many records are fetched per page.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithLogger sets the logger; the default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates an export service over d.
func NewService(d *dao.Dao, opts ...Option) *Service {
	service := &Service{
		dao:      d,
		log:      logger.Nop(),
		pageSize: 1000,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Headers lists the exported columns: every catalog field, then version.
func (s *Service) Headers() []string {
	return append(s.dao.Entity().Catalog.Names(), "version")
}

// Write exports every record matching q to w and returns the row count.
// Queries without a page size use the service default.
func (s *Service) Write(ctx context.Context, q domain.Query, format Format, w io.Writer) (int, error) {
	if q.MaxResults <= 0 {
		q.MaxResults = s.pageSize
	}
	start := time.Now()
	var (
		rows int
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = s.writeCSV(ctx, q, w)
	case FormatXLSX:
		rows, err = s.writeXLSX(ctx, q, w)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	s.log.Info().
		Str("entity", s.dao.Entity().Name).
		Str("format", string(format)).
		Int("rows", rows).
		Dur("duration_ms", time.Since(start)).
		Err(err).
		Msg("Export finished")
	return rows, err
}

func (s *Service) writeCSV(ctx context.Context, q domain.Query, w io.Writer) (int, error) {
	buffered := bufio.NewWriterSize(w, 1<<20) // 1 MiB buffer for streaming writes
	csvWriter := csv.NewWriter(buffered)

	if err := csvWriter.Write(s.Headers()); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	fields := s.dao.Entity().Catalog.Fields()
	row := make([]string, len(fields)+1)
	rowsExported := 0
	err := s.dao.QueryAll(ctx, q, func(rec domain.Record) error {
		for i, f := range fields {
			row[i] = FormatValue(f, f.Value(rec))
		}
		row[len(fields)] = strconv.FormatInt(rec.Version, 10)
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write record row: %w", err)
		}
		rowsExported++
		return nil
	})
	if err != nil {
		return rowsExported, err
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return rowsExported, fmt.Errorf("final flush: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return rowsExported, fmt.Errorf("final buffered flush: %w", err)
	}
	return rowsExported, nil
}

func (s *Service) writeXLSX(ctx context.Context, q domain.Query, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return 0, fmt.Errorf("create stream writer: %w", err)
	}
	headers := s.Headers()
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	fields := s.dao.Entity().Catalog.Fields()
	rowsExported := 0
	err = s.dao.QueryAll(ctx, q, func(rec domain.Record) error {
		row := make([]interface{}, len(fields)+1)
		for i, fd := range fields {
			row[i] = cellValue(fd, fd.Value(rec))
		}
		row[len(fields)] = rec.Version
		cell, err := excelize.CoordinatesToCellName(1, rowsExported+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write record row: %w", err)
		}
		rowsExported++
		return nil
	})
	if err != nil {
		return rowsExported, err
	}
	if err := sw.Flush(); err != nil {
		return rowsExported, fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return rowsExported, fmt.Errorf("write workbook: %w", err)
	}
	return rowsExported, nil
}

// cellValue keeps integers numeric in spreadsheets.
func cellValue(desc domain.FieldDescriptor, v any) interface{} {
	if n, ok := v.(int64); ok && desc.Type == domain.FieldTypeInteger {
		return n
	}
	return FormatValue(desc, v)
}

// FormatValue renders a field value the way ingestion parses it back.
func FormatValue(desc domain.FieldDescriptor, value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case time.Time:
		if desc.Type == domain.FieldTypeDate {
			return v.Format(domain.DateLayout)
		}
		return v.UTC().Format(domain.DateTimeLayout)
	}
	return fmt.Sprint(value)
}
