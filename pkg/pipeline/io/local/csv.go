package local

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shpitdev/route-snapper/pkg/pipeline/core"
)

// ReadCSV reads a CSV with a header row. At most maxRows data rows are kept;
// maxRows <= 0 reads everything.
func ReadCSV(r io.Reader, maxRows int) (core.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.Table{}, fmt.Errorf("read header: empty input")
		}
		return core.Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		// Spreadsheet exports often lead with a UTF-8 BOM.
		header[0] = trimBOM(header[0])
	}

	t := core.Table{Header: header}
	for maxRows <= 0 || len(t.Rows) < maxRows {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return core.Table{}, fmt.Errorf("read row %d: %w", len(t.Rows), err)
		}
		if len(rec) > len(header) {
			return core.Table{}, fmt.Errorf("row %d has %d columns, header has %d", len(t.Rows), len(rec), len(header))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// WriteCSV writes the table header and rows.
func WriteCSV(w io.Writer, t core.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func trimBOM(s string) string {
	const bom = "\uFEFF"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}

// File is an input adapter for a CSV file on disk.
type File struct {
	Path    string
	MaxRows int
}

func (f File) Load(_ context.Context) (core.Table, error) {
	in, err := os.Open(f.Path)
	if err != nil {
		return core.Table{}, err
	}
	defer func() {
		_ = in.Close()
	}()
	return ReadCSV(in, f.MaxRows)
}

// Sink is an output adapter writing CSV to Path, or to W when Path is empty or "-".
type Sink struct {
	Path string
	W    io.Writer
}

func (s Sink) Store(_ context.Context, t core.Table) error {
	if s.Path == "" || s.Path == "-" {
		w := s.W
		if w == nil {
			w = os.Stdout
		}
		return WriteCSV(w, t)
	}

	out, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	if err := WriteCSV(out, t); err != nil {
		return err
	}
	return out.Close()
}
