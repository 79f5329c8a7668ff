// Package ingestion loads tabular CSV or XLSX files into an entity through
// the data-access engine.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/logger"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// versionHeader is written by exports; stored versions are never restored.
const versionHeader = "version"

// Service ingests tabular data into one entity.
type Service struct {
	dao *dao.Dao
	log *logger.Logger
}

// NewService creates a new ingestion service.
func NewService(d *dao.Dao, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{dao: d, log: log}
}

// Request describes the ingestion input. Header cells name entity fields.
type Request struct {
	FileName       string
	HeaderRowIndex *int
	Data           io.Reader
}

// RowError reports one rejected row.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary returns ingestion level metrics.
type Summary struct {
	TotalRows    int        `json:"totalRows"`
	ValidRows    int        `json:"validRows"`
	InvalidRows  int        `json:"invalidRows"`
	AllocatedIDs int        `json:"allocatedIds"`
	Errors       []RowError `json:"errors"`
}

type tableData struct {
	headers        []string
	rows           [][]string
	headerRowIndex int
}

// Ingest reads the uploaded file and stores every valid row. Rows with blank
// integer ID columns get random identifiers; entities that support upsert
// are upserted, others inserted.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{Errors: []RowError{}}

	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}
	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}
	entity := s.dao.Entity()
	columns := make([]domain.FieldDescriptor, len(table.headers))
	for i, header := range table.headers {
		if header == "" || header == versionHeader {
			continue
		}
		desc, err := dao.ResolveField(entity.Catalog, header)
		if err != nil {
			return summary, fmt.Errorf("column %d: %w", i+1, err)
		}
		columns[i] = desc
	}

	summary.TotalRows = len(table.rows)
	for rowIdx, row := range table.rows {
		rowNumber := table.headerRowIndex + rowIdx + 2 // include header row (1-based)

		fields, err := rowFields(columns, row)
		if err != nil {
			s.rowError(&summary, rowNumber, err)
			continue
		}

		missing := missingIDFields(entity, fields)
		rec := domain.NewRecord(fields)
		switch {
		case len(missing) > 0:
			_, err = s.dao.InsertWithRandomID(ctx, rec, dao.AllocateOptions{Fields: missing})
			if err == nil {
				summary.AllocatedIDs++
			}
		case entity.SupportsUpsert:
			_, err = s.dao.Upsert(ctx, rec)
		default:
			_, err = s.dao.Insert(ctx, rec)
		}
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			s.rowError(&summary, rowNumber, fmt.Errorf("failed to store row: %w", err))
			continue
		}
		summary.ValidRows++
	}

	s.log.Info().
		Str("entity", entity.Name).
		Int("total_rows", summary.TotalRows).
		Int("valid_rows", summary.ValidRows).
		Int("invalid_rows", summary.InvalidRows).
		Msg("Ingestion completed")
	return summary, nil
}

func (s *Service) rowError(summary *Summary, rowNumber int, err error) {
	summary.InvalidRows++
	summary.Errors = append(summary.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
	s.log.Warn().Int("row", rowNumber).Err(err).Msg("Row rejected")
}

func rowFields(columns []domain.FieldDescriptor, row []string) (map[string]any, error) {
	fields := make(map[string]any, len(columns))
	for colIdx, desc := range columns {
		if desc.Name == "" || colIdx >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[colIdx])
		if raw == "" {
			continue
		}
		v, err := dao.ParseValue(desc, raw)
		if err != nil {
			return nil, err
		}
		fields[desc.Name] = v
	}
	return fields, nil
}

// missingIDFields lists blank integer ID fields, which can be allocated.
func missingIDFields(e *domain.EntityDescriptor, fields map[string]any) []string {
	var missing []string
	for _, name := range e.IDFields {
		if _, ok := fields[name]; ok {
			continue
		}
		if desc, _ := e.Catalog.Resolve(name); desc.Type == domain.FieldTypeInteger {
			missing = append(missing, name)
		}
	}
	return missing
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records, headerRowIndex)
}

func parseExcel(payload []byte, headerRowIndex *int) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows, headerRowIndex)
}

// normalizeTable picks the header row (the first non-empty row unless
// headerRowIndex is given) and drops empty rows after it.
func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	start := 0
	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		start = *headerRowIndex
	}

	table := tableData{headerRowIndex: -1}
	for idx := start; idx < len(records); idx++ {
		row := records[idx]
		if len(cleanRow(row)) == 0 {
			continue
		}
		if table.headerRowIndex < 0 {
			table.headerRowIndex = idx
			table.headers = make([]string, len(row))
			for i, cell := range row {
				table.headers[i] = strings.TrimSpace(cell)
			}
			continue
		}
		table.rows = append(table.rows, row)
	}
	if table.headerRowIndex < 0 {
		return tableData{}, errors.New("no header row detected")
	}
	if headerRowIndex != nil && table.headerRowIndex != *headerRowIndex {
		return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
	}
	return table, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}
