package donation

import (
	"sort"
	"strings"
)

const bom = "\ufeff"

// Row is one raw CSV data row. Lookups ignore header case and a leading byte order mark.
type Row struct {
	headers []string
	index   map[string]string
	values  map[string]string
}

// NewRow builds a row from a header line and one record. Missing trailing values are empty.
func NewRow(headers []string, record []string) *Row {
	values := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(record) {
			values[h] = record[i]
		} else {
			values[h] = ""
		}
	}
	return newRow(headers, values)
}

// RowFromMap builds a row from a field map. Keys listed in order keep that order;
// any other keys follow in sorted order.
func RowFromMap(fields map[string]string, order ...string) *Row {
	headers := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, h := range order {
		if _, ok := fields[h]; ok && !seen[h] {
			headers = append(headers, h)
			seen[h] = true
		}
	}
	var extra []string
	for h := range fields {
		if !seen[h] {
			extra = append(extra, h)
		}
	}
	sort.Strings(extra)
	headers = append(headers, extra...)

	values := make(map[string]string, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return newRow(headers, values)
}

func newRow(headers []string, values map[string]string) *Row {
	index := make(map[string]string, len(headers))
	for _, h := range headers {
		index[normalizeKey(h)] = h
	}
	return &Row{headers: headers, index: index, values: values}
}

// Value returns the value of the named field and whether the field is present.
// A present but empty field returns "", true.
func (r *Row) Value(name string) (string, bool) {
	key, ok := r.index[normalizeKey(name)]
	if !ok {
		return "", false
	}
	return r.values[key], true
}

// Get returns the trimmed value of the named field, or "" when absent.
func (r *Row) Get(name string) string {
	v, _ := r.Value(name)
	return strings.TrimSpace(v)
}

// Has reports whether the named field is present.
func (r *Row) Has(name string) bool {
	_, ok := r.index[normalizeKey(name)]
	return ok
}

// Headers returns the field names in their original order.
func (r *Row) Headers() []string {
	return append([]string(nil), r.headers...)
}

// Map returns a copy of the row keyed by the original field names.
func (r *Row) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// normalizeKey lowercases a header and strips a byte order mark.
func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, bom)))
}

// IsControlField reports whether name is an internal plugin field rather than CSV data.
func IsControlField(name string) bool {
	return strings.HasPrefix(strings.TrimPrefix(name, bom), "_")
}
