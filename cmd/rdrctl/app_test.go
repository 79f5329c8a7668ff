package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"lastName=Builder", "_count=2", "dateOfBirth=ge2000-01-01", "lastName=Smith", "note=a=b"})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if got := params["lastName"]; len(got) != 2 || got[0] != "Builder" || got[1] != "Smith" {
		t.Errorf("lastName = %v", got)
	}
	if got := params.Get("_count"); got != "2" {
		t.Errorf("_count = %q", got)
	}
	if got := params.Get("dateOfBirth"); got != "ge2000-01-01" {
		t.Errorf("dateOfBirth = %q", got)
	}
	if got := params.Get("note"); got != "a=b" {
		t.Errorf("note = %q", got)
	}
}

func TestParseParamsEmptyValue(t *testing.T) {
	params, err := parseParams([]string{"status="})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if _, ok := params["status"]; !ok {
		t.Fatal("status missing")
	}
}

func TestParseParamsErrors(t *testing.T) {
	for _, arg := range []string{"noequals", "=x"} {
		_, err := parseParams([]string{arg})
		if err == nil {
			t.Errorf("parseParams(%q) succeeded", arg)
			continue
		}
		if !strings.Contains(err.Error(), "expected field=value") {
			t.Errorf("parseParams(%q) error = %v", arg, err)
		}
	}
}

func TestWriteExport(t *testing.T) {
	var stdout bytes.Buffer
	rows, err := writeExport(&stdout, "", func(w io.Writer) (int, error) {
		_, err := io.WriteString(w, "id\n1\n")
		return 1, err
	})
	if err != nil || rows != 1 || stdout.String() != "id\n1\n" {
		t.Fatalf("stdout export: rows=%d err=%v out=%q", rows, err, stdout.String())
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	rows, err = writeExport(&stdout, path, func(w io.Writer) (int, error) {
		_, err := io.WriteString(w, "id\n2\n3\n")
		return 2, err
	})
	if err != nil || rows != 2 {
		t.Fatalf("file export: rows=%d err=%v", rows, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if string(data) != "id\n2\n3\n" {
		t.Fatalf("unexpected file content %q", data)
	}
}

func TestWriteExport_CloseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	_, err := writeExport(io.Discard, path, func(w io.Writer) (int, error) {
		f, ok := w.(*os.File)
		if !ok {
			t.Fatalf("expected a file writer, got %T", w)
		}
		// the deferred close then fails
		return 5, f.Close()
	})
	if err == nil || !strings.Contains(err.Error(), "failed to close") {
		t.Fatalf("expected close error, got %v", err)
	}
}
