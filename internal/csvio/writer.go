package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/peteski22/cdflow/internal/donation"
)

// Result file columns.
const (
	ColumnDonationID    = "NB Donation ID"
	ColumnErrorMessage  = "NB Error Message"
	ColumnPeopleCreated = "NB People Create Date"
	ColumnPeopleID      = "NB People ID"
)

// Writer writes rows with the input's data columns followed by extra result columns.
// Each row is flushed as it is written so partial output survives a crash.
type Writer struct {
	closer  io.Closer
	csv     *csv.Writer
	headers []string
}

// Create creates the file at path, including parent directories, and writes the header line.
func Create(path string, headers []string, extra ...string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	w, err := NewWriter(f, headers, extra...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes the header line to out. Control fields are dropped from headers.
func NewWriter(out io.Writer, headers []string, extra ...string) (*Writer, error) {
	data := DataHeaders(headers)

	w := &Writer{csv: csv.NewWriter(out), headers: data}
	if err := w.write(append(append([]string(nil), data...), extra...)); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return w, nil
}

// Write writes the row's data columns followed by extra values.
// Fields not in the header line, such as those added by plugins, are not written.
func (w *Writer) Write(row *donation.Row, extra ...string) error {
	record := make([]string, 0, len(w.headers)+len(extra))
	for _, h := range w.headers {
		v, _ := row.Value(h)
		record = append(record, v)
	}
	return w.write(append(record, extra...))
}

func (w *Writer) write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the underlying file, if the writer owns one.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// DataHeaders returns headers without control fields.
func DataHeaders(headers []string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if !donation.IsControlField(h) {
			out = append(out, h)
		}
	}
	return out
}
