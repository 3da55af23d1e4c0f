package rollback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoSuccessFiles is returned when a directory holds no success files.
var ErrNoSuccessFiles = errors.New("no success files found")

const defaultImportType = "CanadaHelps"

// signatures are header sets that identify a source, checked in order.
var signatures = []struct {
	importType string
	headers    []string
}{
	{importType: "CanadaHelps", headers: []string{"DONOR FIRST NAME", "DONOR EMAIL ADDRESS", "TRANSACTION NUMBER"}},
	{importType: "PayPal", headers: []string{"Date", "Time", "Name", "From Email Address", "Gross"}},
	{importType: "Generic", headers: []string{"email", "amount", "donation_date"}},
}

// DetectImportType identifies the source of a file from its headers. When no signature
// matches it returns configured, or CanadaHelps when that is empty.
func DetectImportType(headers []string, configured string) string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}

	for _, sig := range signatures {
		if hasAll(present, sig.headers) {
			return sig.importType
		}
	}

	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	return defaultImportType
}

func hasAll(present map[string]bool, headers []string) bool {
	for _, h := range headers {
		if !present[strings.ToLower(h)] {
			return false
		}
	}
	return true
}

// SuccessFiles returns the success files in dir, newest first.
func SuccessFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*_success.csv"))
	if err != nil {
		return nil, fmt.Errorf("listing success files: %w", err)
	}

	type entry struct {
		path    string
		modTime int64
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, entry{path: m, modTime: info.ModTime().UnixNano()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].modTime != entries[j].modTime {
			return entries[i].modTime > entries[j].modTime
		}
		return entries[i].path > entries[j].path
	})

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, e.path)
	}
	return files, nil
}

// LatestSuccessFile returns the newest success file in dir.
func LatestSuccessFile(dir string) (string, error) {
	files, err := SuccessFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%s: %w", dir, ErrNoSuccessFiles)
	}
	return files[0], nil
}
