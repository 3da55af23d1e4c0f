package importer

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
	"github.com/peteski22/cdflow/internal/nationbuilder"
	"github.com/peteski22/cdflow/internal/plugin"
)

const (
	defaultBatchSize         = 10
	defaultRequestsPerSecond = 2.0

	successSuffix = "_success.csv"
	failSuffix    = "_fail.csv"
)

// standardDonationFields are donation payload keys that never count as custom fields.
var standardDonationFields = map[string]bool{
	"amount":             true,
	"amount_in_cents":    true,
	"billing_address":    true,
	"check_number":       true,
	"donor_id":           true,
	"email":              true,
	"employer":           true,
	"first_name":         true,
	"id":                 true,
	"last_name":          true,
	"payment_type_name":  true,
	"succeeded_at":       true,
	"tracking_code_slug": true,
}

// Config holds the configuration for creating a Service.
type Config struct {
	// BatchSize is the number of rows sent without pacing. Default is 10.
	BatchSize int

	// CheckDuplicates enables searching NationBuilder for an existing donation with the same
	// check number before creating one.
	CheckDuplicates bool

	// DryRun indicates whether to skip writes to NationBuilder.
	DryRun bool

	// Ledger records imported check numbers across runs. Optional.
	Ledger Ledger

	// Location is used for source times without a zone. Defaults to time.Local.
	Location *time.Location

	// Logger is the structured logger for the service.
	Logger *slog.Logger

	// NationBuilder is the NationBuilder API client.
	NationBuilder NationBuilderClient

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OutputDir is where the success and fail files are written.
	OutputDir string

	// Registry supplies adapter plugins. Optional.
	Registry *plugin.Registry

	// RequestsPerSecond paces rows once a batch is used up. Default is 2.
	RequestsPerSecond float64
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.NationBuilder == nil {
		errs = append(errs, errors.New("nationbuilder client is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch size must not be negative, got %d", c.BatchSize))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests per second must not be negative, got %v", c.RequestsPerSecond))
	}
	return errors.Join(errs...)
}

// Service imports donation files into NationBuilder.
type Service struct {
	batchSize       int
	checkDuplicates bool
	dryRun          bool
	ledger          Ledger
	limiter         *rate.Limiter
	location        *time.Location
	logger          *slog.Logger
	nationbuilder   NationBuilderClient
	now             func() time.Time
	outputDir       string
	registry        *plugin.Registry
}

// New creates a new import service.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "importer")

	nb := cfg.NationBuilder
	if cfg.DryRun {
		nb = newDryRunClient(cfg.NationBuilder, logger)
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = defaultRequestsPerSecond
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	registry := cfg.Registry
	if registry == nil {
		registry = plugin.NewRegistry()
	}

	return &Service{
		batchSize:       batchSize,
		checkDuplicates: cfg.CheckDuplicates,
		dryRun:          cfg.DryRun,
		ledger:          cfg.Ledger,
		limiter:         rate.NewLimiter(rate.Limit(rps), batchSize),
		location:        loc,
		logger:          logger,
		nationbuilder:   nb,
		now:             now,
		outputDir:       cfg.OutputDir,
		registry:        registry,
	}, nil
}

// Run imports every row of the requested file. Header validation failures and file errors
// are returned before any row is sent. Row failures are written to the fail file and do not
// stop the run.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Adapter == nil {
		return nil, errors.New("adapter is required")
	}

	table, err := csvio.ReadFile(req.FilePath)
	if err != nil {
		return nil, err
	}
	if err := req.Adapter.ValidateHeaders(table.Headers); err != nil {
		return nil, fmt.Errorf("validating %s file: %w", req.Adapter.Name(), err)
	}

	logger := s.logger.With("adapter", req.Adapter.Name())
	if req.JobContext != nil && req.JobContext.JobID != "" {
		logger = logger.With("job_id", req.JobContext.JobID)
	}

	mapper, err := donation.NewMapper(donation.Config{
		Adapter:      req.Adapter,
		CustomFields: s.customFields(ctx, logger, req.Adapter, table.Headers),
		JobContext:   req.JobContext,
		Location:     s.location,
		Logger:       logger,
		Now:          s.now,
		Registry:     s.registry,
	})
	if err != nil {
		return nil, fmt.Errorf("creating mapper: %w", err)
	}

	successPath, failPath := s.outputPaths(req.FilePath)
	success, err := csvio.Create(successPath, table.Headers,
		csvio.ColumnPeopleID, csvio.ColumnDonationID, csvio.ColumnPeopleCreated)
	if err != nil {
		return nil, err
	}
	defer closeWriter(logger, success)

	fail, err := csvio.Create(failPath, table.Headers, csvio.ColumnErrorMessage)
	if err != nil {
		return nil, err
	}
	defer closeWriter(logger, fail)

	rows := table.Rows()
	result := &Result{
		DryRun:      s.dryRun,
		FailFile:    failPath,
		SuccessFile: successPath,
		Total:       len(rows),
	}

	logger.Info("starting import",
		"file", req.FilePath,
		"rows", len(rows),
		"batch_size", s.batchSize,
		"dry_run", s.dryRun)

	for i, row := range rows {
		if req.Aborted != nil && req.Aborted() {
			logger.Warn("import aborted", "rows_remaining", len(rows)-i)
			result.Aborted = true
			break
		}
		if i%s.batchSize == 0 {
			logger.Debug("starting batch", "batch", i/s.batchSize+1, "first_row", i+1)
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		rr, rec := s.processRow(ctx, logger, mapper, row)
		if err := s.record(logger, result, success, fail, row, rec, rr); err != nil {
			return result, err
		}

		if req.Progress != nil {
			req.Progress(i+1, len(rows))
		}
	}

	logger.Info("import completed",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"people_created", result.PeopleCreated,
		"aborted", result.Aborted,
		"dry_run", s.dryRun)

	return result, nil
}

// record writes the row outcome to the matching output file and updates the totals.
func (s *Service) record(
	logger *slog.Logger,
	result *Result,
	success *csvio.Writer,
	fail *csvio.Writer,
	row *donation.Row,
	rec *donation.Record,
	rr RowResult,
) error {
	out := row
	if rec != nil && rec.Row != nil {
		out = rec.Row
	}

	switch {
	case rr.Skipped:
		result.Skipped++
		return nil
	case rr.Error != nil:
		result.Failed++
		logger.Error("failed to import row", "error", rr.Error)
		if err := fail.Write(out, rr.Error.Error()); err != nil {
			return fmt.Errorf("writing fail row: %w", err)
		}
		return nil
	}

	result.Succeeded++
	if rr.PersonCreated {
		result.PeopleCreated++
	}
	createdAt := ""
	if rr.PersonCreated {
		createdAt = rr.PersonCreatedAt
	}
	if err := success.Write(out, rr.PersonID, rr.DonationID, createdAt); err != nil {
		return fmt.Errorf("writing success row: %w", err)
	}
	return nil
}

// processRow maps a row and creates its person and donation.
func (s *Service) processRow(
	ctx context.Context,
	logger *slog.Logger,
	mapper *donation.Mapper,
	row *donation.Row,
) (RowResult, *donation.Record) {
	if err := mapper.Adapter().ValidateRow(row); err != nil {
		return RowResult{Error: err}, nil
	}

	rec, err := mapper.Map(row)
	if err != nil {
		return RowResult{Error: err}, nil
	}

	if payload, err := rec.JSON(); err != nil {
		logger.Warn("encoding mapped record", "transaction", rec.TransactionID(), "error", err)
	} else {
		logger.Debug("mapped record", "transaction", rec.TransactionID(), "payload", string(payload))
	}

	if rec.Skip {
		logger.Info("skipping row", "transaction", rec.TransactionID(), "reason", rec.SkipReason)
		return RowResult{Skipped: true}, rec
	}

	if err := s.checkDuplicate(ctx, rec); err != nil {
		return RowResult{Error: err}, rec
	}

	personID, person, err := s.resolvePerson(ctx, logger, mapper.Adapter().Name(), rec)
	if err != nil {
		return RowResult{Error: fmt.Errorf("resolving person: %w", err)}, rec
	}

	result := RowResult{PersonID: personID}
	if person != nil {
		result.PersonCreated = true
		result.PersonCreatedAt = person.CreatedAt
		if result.PersonCreatedAt == "" {
			result.PersonCreatedAt = s.now().Format(time.RFC3339)
		}
	}

	created, err := s.nationbuilder.CreateDonation(ctx, rec.ToDonation(personID))
	if err != nil {
		if result.PersonCreated {
			logger.Warn("person created without donation", "person_id", personID, "transaction", rec.TransactionID())
		}
		result.Error = err
		return result, rec
	}
	result.DonationID = created.ID.String()

	s.recordLedger(ctx, logger, rec, result.DonationID)
	s.createMembership(ctx, logger, personID, rec)

	logger.Info("imported donation",
		"transaction", rec.TransactionID(),
		"person_id", personID,
		"donation_id", result.DonationID,
		"person_created", result.PersonCreated)

	return result, rec
}

// checkDuplicate fails rows whose check number was already imported.
func (s *Service) checkDuplicate(ctx context.Context, rec *donation.Record) error {
	if rec.CheckNumber == nil || *rec.CheckNumber == "" {
		return nil
	}
	checkNumber := *rec.CheckNumber

	if s.ledger != nil {
		id, found, err := s.ledger.DonationID(ctx, checkNumber)
		if err != nil {
			return fmt.Errorf("checking import ledger: %w", err)
		}
		if found {
			return fmt.Errorf("duplicate donation: check number %s already imported as donation %s", checkNumber, id)
		}
	}

	if !s.checkDuplicates {
		return nil
	}
	date := rec.SucceededDate()
	if date == "" {
		return nil
	}

	id, err := s.nationbuilder.DonationIDByCheckNumber(ctx, checkNumber, date)
	switch {
	case err == nil:
		return fmt.Errorf("duplicate donation: check number %s already exists as donation %s", checkNumber, id)
	case errors.Is(err, nationbuilder.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("checking for duplicate donation: %w", err)
	}
}

func (s *Service) recordLedger(ctx context.Context, logger *slog.Logger, rec *donation.Record, donationID string) {
	if s.ledger == nil || s.dryRun || rec.CheckNumber == nil || *rec.CheckNumber == "" {
		return
	}
	if err := s.ledger.Record(ctx, *rec.CheckNumber, donationID); err != nil {
		logger.Error("failed to record donation in ledger",
			"check_number", *rec.CheckNumber,
			"donation_id", donationID,
			"error", err)
	}
}

// createMembership adds a plugin requested membership. Failures are logged only.
func (s *Service) createMembership(ctx context.Context, logger *slog.Logger, personID string, rec *donation.Record) {
	if rec.Membership == nil {
		return
	}

	started := s.now().In(s.location)
	m := &nationbuilder.Membership{
		Name:      rec.Membership.Name,
		StartedAt: started.Format(time.RFC3339),
		Status:    "active",
	}
	if rec.Membership.Months > 0 {
		m.ExpiresOn = started.AddDate(0, rec.Membership.Months, 0).Format(time.RFC3339)
	}

	if _, err := s.nationbuilder.CreateMembership(ctx, personID, m); err != nil {
		logger.Error("failed to create membership",
			"person_id", personID,
			"membership", m.Name,
			"error", err)
	}
}

// customFields asks NationBuilder which of the file's columns are donation fields.
func (s *Service) customFields(
	ctx context.Context,
	logger *slog.Logger,
	adapter donation.Adapter,
	headers []string,
) map[string]bool {
	required := make(map[string]bool)
	for _, f := range adapter.RequiredFields() {
		required[strings.ToLower(f)] = true
	}

	var names []string
	for _, h := range csvio.DataHeaders(headers) {
		key := strings.ToLower(h)
		if required[key] || standardDonationFields[key] {
			continue
		}
		names = append(names, h)
	}
	if len(names) == 0 {
		return nil
	}

	available, err := s.nationbuilder.DetectCustomFields(ctx, names)
	if err != nil {
		logger.Warn("could not detect custom donation fields", "error", err)
		return nil
	}
	return available
}

func (s *Service) outputPaths(input string) (string, string) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	stamp := s.now().Format("20060102_150405")
	base := filepath.Join(s.outputDir, stem+"_"+stamp)
	return base + successSuffix, base + failSuffix
}

func closeWriter(logger *slog.Logger, w *csvio.Writer) {
	if err := w.Close(); err != nil {
		logger.Error("failed to close output file", "error", err)
	}
}
