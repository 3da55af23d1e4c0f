// Package rollback reverses a completed import by deleting the records listed in its success file.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/peteski22/cdflow/internal/csvio"
	"github.com/peteski22/cdflow/internal/donation"
)

// ErrEmptyInput is returned when the success file has no data rows. Nothing is deleted.
var ErrEmptyInput = errors.New("no rows to roll back")

const defaultRequestsPerSecond = 2.0

// RowProcessor deletes what one success row created. It reports the outcome as a message
// rather than an error so the run can continue with the next row.
type RowProcessor interface {
	ProcessRow(ctx context.Context, row *donation.Row, importType string) (ok bool, message string)
}

// Config holds the configuration for creating a Service.
type Config struct {
	// ImportType is used when the file's headers do not identify the source. Optional.
	ImportType string

	// Logger is the structured logger for the service.
	Logger *slog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OutputDir is where rollback logs are written. Defaults to the success file's directory.
	OutputDir string

	// Processor handles each row.
	Processor RowProcessor

	// RequestsPerSecond paces rows. Default is 2.
	RequestsPerSecond float64
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Processor == nil {
		errs = append(errs, errors.New("row processor is required"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests per second must not be negative, got %v", c.RequestsPerSecond))
	}
	return errors.Join(errs...)
}

// Result contains the outcome of a rollback.
type Result struct {
	// Failed is the number of rows that could not be fully rolled back.
	Failed int

	// ImportType is the source the rows were treated as.
	ImportType string

	// OutputFile is the rollback log.
	OutputFile string

	// Succeeded is the number of rows rolled back.
	Succeeded int

	// Total is the number of data rows in the success file.
	Total int
}

// Service rolls back imports.
type Service struct {
	importType string
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
	outputDir  string
	processor  RowProcessor
}

// New creates a new rollback service.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = defaultRequestsPerSecond
	}

	return &Service{
		importType: cfg.ImportType,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.With("component", "rollback"),
		now:        now,
		outputDir:  cfg.OutputDir,
		processor:  cfg.Processor,
	}, nil
}

// Run rolls back the rows of the success file at path, last row first, so records created
// later are removed before the ones they depend on. Each row is written to the rollback log
// with its outcome as soon as it is processed. Rows that fail are counted, not returned as
// an error; only a file that cannot be read or has no rows fails the run.
func (s *Service) Run(ctx context.Context, path string) (*Result, error) {
	table, err := csvio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows := table.Rows()
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyInput)
	}

	importType := DetectImportType(table.Headers, s.importType)
	logger := s.logger.With("file", filepath.Base(path), "import_type", importType)

	outputPath := s.outputPath(path)
	w, err := csvio.Create(outputPath, table.Headers, csvio.ColumnErrorMessage)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Error("failed to close rollback log", "error", err)
		}
	}()

	result := &Result{ImportType: importType, OutputFile: outputPath, Total: len(rows)}
	logger.Info("rolling back import", "rows", len(rows), "output", outputPath)

	for i := len(rows) - 1; i >= 0; i-- {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("rollback interrupted: %w", err)
		}

		ok, message := s.processor.ProcessRow(ctx, rows[i], importType)
		if ok {
			result.Succeeded++
		} else {
			result.Failed++
			logger.Warn("row rollback failed", "row", i+1, "message", message)
		}

		if err := w.Write(rows[i], message); err != nil {
			return result, fmt.Errorf("writing rollback log: %w", err)
		}
	}

	logger.Info("rollback finished", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// outputPath returns <dir>/<stem>_rollback_<timestamp>.csv, dropping a trailing _success.
func (s *Service) outputPath(input string) string {
	dir := s.outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	stem = strings.TrimSuffix(stem, "_success")
	return filepath.Join(dir, fmt.Sprintf("%s_rollback_%s.csv", stem, s.now().Format("20060102_150405")))
}
