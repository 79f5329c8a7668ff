package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/entities"
	"github.com/rpattn/rdrstore/internal/store/memory"
)

func newOrderDao(t *testing.T) *dao.Dao {
	t.Helper()
	d, err := dao.New(entities.BiobankOrder(), memory.NewStore())
	if err != nil {
		t.Fatalf("failed to create dao: %v", err)
	}
	ctx := context.Background()
	for _, fields := range []map[string]any{
		{"biobankOrderId": "KIT-2", "participantId": int64(10), "created": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "orderStatus": "AMENDED"},
		{"biobankOrderId": "KIT-1", "participantId": int64(10), "collectedSiteId": "PITT"},
		{"biobankOrderId": "KIT-3", "participantId": int64(5)},
	} {
		if _, err := d.Insert(ctx, domain.NewRecord(fields)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	return d
}

func TestWriteCSV(t *testing.T) {
	s := NewService(newOrderDao(t), WithPageSize(2))
	var buf bytes.Buffer
	n, err := s.Write(context.Background(), domain.Query{}, FormatCSV, &buf)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	want := strings.Join([]string{
		"biobankOrderId,participantId,created,orderStatus,collectedSiteId,version",
		"KIT-3,5,,,,1",
		"KIT-1,10,,,PITT,1",
		"KIT-2,10,2024-01-02T03:04:05Z,AMENDED,,1",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected CSV:\n%s", buf.String())
	}
}

func TestWriteCSV_Filtered(t *testing.T) {
	s := NewService(newOrderDao(t))
	var buf bytes.Buffer
	q := domain.Query{Filters: []domain.FilterClause{domain.NewFilter("participantId", int64(10))}}
	n, err := s.Write(context.Background(), q, FormatCSV, &buf)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if n != 2 || strings.Count(buf.String(), "\n") != 3 {
		t.Fatalf("expected header and 2 rows, got %d rows:\n%s", n, buf.String())
	}
}

func TestWriteXLSX(t *testing.T) {
	s := NewService(newOrderDao(t), WithPageSize(1))
	var buf bytes.Buffer
	n, err := s.Write(context.Background(), domain.Query{}, FormatXLSX, &buf)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("export is not a workbook: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(s.Headers(), ",") {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "KIT-3" || rows[1][1] != "5" || rows[1][5] != "1" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[3][2] != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected datetime cell %q", rows[3][2])
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	s := NewService(newOrderDao(t))
	if _, err := s.Write(context.Background(), domain.Query{}, Format("json"), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatal("expected error for unknown format name")
	}
	if f, err := ParseFormat("xlsx"); err != nil || f != FormatXLSX {
		t.Fatalf("unexpected format %q, %v", f, err)
	}
}

func TestFormatValue(t *testing.T) {
	date := domain.FieldDescriptor{Name: "d", Type: domain.FieldTypeDate}
	when := domain.FieldDescriptor{Name: "t", Type: domain.FieldTypeDateTime}
	at := time.Date(2020, 5, 6, 7, 8, 9, 10, time.UTC)

	if got := FormatValue(date, at); got != "2020-05-06" {
		t.Errorf("date rendered as %q", got)
	}
	if got := FormatValue(when, at); got != "2020-05-06T07:08:09.00000001Z" {
		t.Errorf("datetime rendered as %q", got)
	}
	if got := FormatValue(when, nil); got != "" {
		t.Errorf("nil rendered as %q", got)
	}
	if got := FormatValue(domain.FieldDescriptor{Type: domain.FieldTypeInteger}, int64(-4)); got != "-4" {
		t.Errorf("integer rendered as %q", got)
	}
}
