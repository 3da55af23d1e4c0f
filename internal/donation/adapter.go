package donation

import (
	"fmt"
	"strings"
)

// Adapter describes one donation platform's export format.
type Adapter interface {
	// Name is the display name of the format, also used as the plugin namespace.
	Name() string

	// RequiredFields lists the columns every file must carry.
	RequiredFields() []string

	// ValidateHeaders checks a header line before any row is processed.
	ValidateHeaders(headers []string) error

	// ValidateRow checks a single row.
	ValidateRow(row *Row) error

	populate(m *mapping, rec *Record) error
}

// Adapters returns every supported format.
func Adapters() []Adapter {
	return []Adapter{CanadaHelps{}, PayPal{}, Generic{}}
}

// AdapterFor returns the adapter with the given name, ignoring case.
func AdapterFor(name string) (Adapter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, a := range Adapters() {
		if strings.ToLower(a.Name()) == key {
			return a, nil
		}
	}
	return nil, fmt.Errorf("unknown import type %q", name)
}

// ValidationError reports why a header line or row cannot be imported.
type ValidationError struct {
	// Missing lists required fields that are absent or empty.
	Missing []string

	// Reason is an additional format specific problem.
	Reason string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return strings.Join(parts, "; ")
}

// missingHeaders returns the required fields not present in headers.
func missingHeaders(headers []string, required []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[normalizeKey(h)] = true
	}

	var missing []string
	for _, f := range required {
		if !present[normalizeKey(f)] {
			missing = append(missing, f)
		}
	}
	return missing
}

// missingValues returns the required fields that are absent or blank in row.
func missingValues(row *Row, required []string) []string {
	var missing []string
	for _, f := range required {
		if row.Get(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func validateHeaders(headers []string, required []string) error {
	if missing := missingHeaders(headers, required); len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
