// Package csvio reads donation exports and writes the import and rollback result files.
package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/peteski22/cdflow/internal/donation"
)

// ErrNoHeader is returned when a file has no header line.
var ErrNoHeader = errors.New("file has no header row")

// Table is a parsed CSV file.
type Table struct {
	// Headers is the header line with any byte order mark removed.
	Headers []string

	// Records holds the data lines. Blank lines are dropped.
	Records [][]string
}

// Rows returns the data lines as rows keyed by header.
func (t *Table) Rows() []*donation.Row {
	rows := make([]*donation.Row, 0, len(t.Records))
	for _, rec := range t.Records {
		rows = append(rows, donation.NewRow(t.Headers, rec))
	}
	return rows
}

// ReadFile reads and parses the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

// Read parses CSV from r. UTF-8 and UTF-16 input is recognised by its byte order mark;
// input without one is read as UTF-8 when valid and as Windows-1252 otherwise.
func Read(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	data, _, err := transform.Bytes(unicode.BOMOverride(fallbackDecoder(raw)), raw)
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	t := &Table{Headers: headers}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func fallbackDecoder(raw []byte) transform.Transformer {
	if utf8.Valid(raw) {
		return encoding.Nop.NewDecoder()
	}
	return charmap.Windows1252.NewDecoder()
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
