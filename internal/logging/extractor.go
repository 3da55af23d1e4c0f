package logging

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultBufferAfter = 10 * time.Second
	defaultMaxWindow   = 30 * time.Minute

	jobIDPlaceholder = "{job_id}"
)

// Patterns select the application log lines that belong to an import.
// Each pattern is matched as a plain substring.
type Patterns struct {
	// Component patterns match lines from components that only log while importing.
	Component []string `yaml:"component"`

	// Content patterns match lines by message text.
	Content []string `yaml:"content"`

	// Job patterns match lines naming the job. {job_id} is replaced by the job's id and must
	// not be followed by further id characters, so job 12 does not match job 123.
	Job []string `yaml:"job"`
}

// DefaultPatterns returns the patterns used when none are configured.
func DefaultPatterns() Patterns {
	return Patterns{
		Component: []string{"component=importer", "component=mapper", "component=plugin"},
		Content:   []string{"[DRY-RUN]", "FALLBACK"},
		Job:       []string{"job_id=" + jobIDPlaceholder},
	}
}

// ExtractorConfig holds the configuration for creating an Extractor.
type ExtractorConfig struct {
	// BufferAfter extends the window past the job's end. Default is 10s.
	BufferAfter time.Duration

	// Logger is the structured logger for the extractor.
	Logger *slog.Logger

	// MaxWindow caps the window length from the job's start. Default is 30m.
	MaxWindow time.Duration

	// OutputDir is where import logs are written.
	OutputDir string

	// Patterns select lines. Empty groups fall back to DefaultPatterns.
	Patterns Patterns
}

// Extraction describes one job's import log.
type Extraction struct {
	// AppLog is the application log to read.
	AppLog string

	// End is when the job finished.
	End time.Time

	// JobID identifies the job.
	JobID string

	// Source is the imported file, used to name the output. Optional.
	Source string

	// Start is when the job started.
	Start time.Time
}

// Extractor copies a job's lines from the application log into a file of their own.
type Extractor struct {
	bufferAfter time.Duration
	logger      *slog.Logger
	maxWindow   time.Duration
	outputDir   string
	patterns    Patterns
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("invalid config: output directory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultPatterns()
	patterns := cfg.Patterns
	if len(patterns.Component) == 0 {
		patterns.Component = defaults.Component
	}
	if len(patterns.Content) == 0 {
		patterns.Content = defaults.Content
	}
	if len(patterns.Job) == 0 {
		patterns.Job = defaults.Job
	}

	bufferAfter := cfg.BufferAfter
	if bufferAfter <= 0 {
		bufferAfter = defaultBufferAfter
	}
	maxWindow := cfg.MaxWindow
	if maxWindow <= 0 {
		maxWindow = defaultMaxWindow
	}

	return &Extractor{
		bufferAfter: bufferAfter,
		logger:      logger.With("component", "log_extractor"),
		maxWindow:   maxWindow,
		outputDir:   cfg.OutputDir,
		patterns:    patterns,
	}, nil
}

// Extract writes the job's lines to IMPORTDONATIONS_<start>_<job>_<source>.log and returns
// its path. A file is written even when no line matches.
func (e *Extractor) Extract(x Extraction) (string, error) {
	if x.JobID == "" {
		return "", errors.New("job ID is required")
	}

	lines, err := e.matchingLines(x)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(e.outputDir, FileName(x.JobID, x.Start, x.Source))

	var b strings.Builder
	fmt.Fprintf(&b, "# Import log extracted from application log %s\n", filepath.Base(x.AppLog))
	fmt.Fprintf(&b, "# Job %s\n", x.JobID)
	if len(lines) == 0 {
		b.WriteString("# No matching lines found\n")
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing import log: %w", err)
	}

	e.logger.Info("extracted import log", "job_id", x.JobID, "lines", len(lines), "path", path)
	return path, nil
}

// FileName returns the import log name for a job. Source defaults to "extracted".
func FileName(jobID string, start time.Time, source string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if source == "" || stem == "" || stem == "." {
		stem = "extracted"
	}
	return fmt.Sprintf("IMPORTDONATIONS_%s_%s_%s.log", start.Format("20060102-150405"), jobID, stem)
}

// matchingLines returns the lines of the application log inside the job's window that match
// a pattern. A missing log yields no lines.
func (e *Extractor) matchingLines(x Extraction) ([]string, error) {
	if x.AppLog == "" {
		return nil, nil
	}

	f, err := os.Open(x.AppLog)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("application log not found", "path", x.AppLog)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening application log: %w", err)
	}
	defer f.Close()

	from, to := e.window(x.Start, x.End)

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		ts, ok := lineTime(line)
		if !ok || ts.Before(from) || ts.After(to) {
			continue
		}
		if e.matches(line, x.JobID) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading application log: %w", err)
	}
	return lines, nil
}

// window returns [start, min(end+bufferAfter, start+maxWindow)].
func (e *Extractor) window(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() || end.Before(start) {
		end = start
	}
	to := end.Add(e.bufferAfter)
	if limit := start.Add(e.maxWindow); to.After(limit) {
		to = limit
	}
	return start, to
}

func (e *Extractor) matches(line, jobID string) bool {
	for _, p := range e.patterns.Job {
		if containsBounded(line, strings.ReplaceAll(p, jobIDPlaceholder, jobID)) {
			return true
		}
	}
	for _, p := range e.patterns.Component {
		if strings.Contains(line, p) {
			return true
		}
	}
	for _, p := range e.patterns.Content {
		if strings.Contains(line, p) {
			return true
		}
	}
	return false
}

// containsBounded reports whether needle occurs in s and is not immediately followed by a
// letter, digit, underscore or hyphen.
func containsBounded(s, needle string) bool {
	if needle == "" {
		return false
	}
	for offset := 0; ; {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return false
		}
		end := offset + i + len(needle)
		if end == len(s) || !isIDChar(s[end]) {
			return true
		}
		offset += i + 1
	}
}

func isIDChar(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// lineTime reads the time= attribute that starts a text handler line.
func lineTime(line string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(line, "time=")
	if !ok {
		return time.Time{}, false
	}
	value, _, _ := strings.Cut(rest, " ")
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
