// Package donation maps raw CSV rows from donation platforms to canonical donation records.
package donation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/peteski22/cdflow/internal/plugin"
)

// Config holds the configuration for creating a Mapper.
type Config struct {
	// Adapter is the source format of the rows.
	Adapter Adapter

	// CustomFields lists donation fields the nation supports. Row fields with a true entry
	// are copied to the record's custom values.
	CustomFields map[string]bool

	// JobContext is attached to every record.
	JobContext *JobContext

	// Location is used for source times that carry no zone. Defaults to time.Local.
	Location *time.Location

	// Logger is the structured logger for mapping diagnostics.
	Logger *slog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Registry supplies the adapter's plugins. Optional.
	Registry *plugin.Registry
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	if c.Adapter == nil {
		return errors.New("adapter is required")
	}
	return nil
}

// Mapper builds canonical records from raw rows of one source format.
type Mapper struct {
	adapter      Adapter
	customFields map[string]bool
	jobContext   *JobContext
	location     *time.Location
	logger       *slog.Logger
	now          func() time.Time
	registry     *plugin.Registry
}

// NewMapper creates a Mapper.
func NewMapper(cfg Config) (*Mapper, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
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

	return &Mapper{
		adapter:      cfg.Adapter,
		customFields: cfg.CustomFields,
		jobContext:   cfg.JobContext,
		location:     loc,
		logger:       logger.With("component", "mapper", "adapter", cfg.Adapter.Name()),
		now:          now,
		registry:     registry,
	}, nil
}

// Adapter returns the mapper's source format.
func (m *Mapper) Adapter() Adapter {
	return m.adapter
}

// Map runs the adapter's row transformers over row and maps the result to a Record.
// Plugin failures are logged and skipped. An unparsable amount is returned as an error;
// date problems fall back to the current time.
func (m *Mapper) Map(row *Row) (*Record, error) {
	signals := &plugin.Signals{}
	transformed := RowFromMap(m.transform(row.Map(), signals), row.Headers()...)

	mp := &mapping{
		location:   m.location,
		logger:     m.logger,
		now:        m.now(),
		processors: m.registry.Get(m.adapter.Name(), plugin.TypeFieldProcessor),
		raw:        transformed.Map(),
		row:        transformed,
	}

	rec := &Record{JobContext: m.jobContext, Row: transformed}
	if err := m.adapter.populate(mp, rec); err != nil {
		return nil, fmt.Errorf("mapping %s row: %w", m.adapter.Name(), err)
	}

	m.copyCustomFields(transformed, rec)
	applySignals(rec, signals)

	return rec, nil
}

// transform runs each row transformer on a copy of the row. A failing transformer leaves
// both the row and the signals as they were before it ran.
func (m *Mapper) transform(fields map[string]string, signals *plugin.Signals) map[string]string {
	for _, p := range m.registry.Get(m.adapter.Name(), plugin.TypeRowTransformer) {
		snapshot := *signals

		out, err := runTransformer(p, copyFields(fields), signals)
		if err != nil {
			m.logger.Error("Error in row transformer plugin", "plugin", p.Name, "error", err)
			*signals = snapshot
			continue
		}
		if out != nil {
			fields = out
		}
	}
	return fields
}

func runTransformer(p plugin.Plugin, fields map[string]string, signals *plugin.Signals) (out map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.RowTransformer(fields, signals)
}

func (m *Mapper) copyCustomFields(row *Row, rec *Record) {
	for name, available := range m.customFields {
		if !available {
			continue
		}
		if v := row.Get(name); v != "" {
			if rec.CustomValues == nil {
				rec.CustomValues = make(map[string]string)
			}
			rec.CustomValues[name] = v
		}
	}
}

// applySignals copies plugin overrides onto the record.
func applySignals(rec *Record, s *plugin.Signals) {
	if v, ok := s.CheckNumber(); ok {
		rec.CheckNumber = &v
	}
	if v, ok := s.PaymentType(); ok {
		rec.PaymentType = &v
	}
	if v, ok := s.TrackingCode(); ok {
		rec.TrackingCode = &v
	}
	rec.Skip, rec.SkipReason = s.Skipped()
	rec.Membership = s.Membership()
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// mapping is the per-row state adapters read from while populating a record.
type mapping struct {
	location   *time.Location
	logger     *slog.Logger
	now        time.Time
	processors []plugin.Plugin
	raw        map[string]string
	row        *Row
}

// value returns the trimmed field value after field processors ran.
func (m *mapping) value(field string) string {
	v := m.row.Get(field)
	for _, p := range m.processors {
		out, err := runProcessor(p, field, v, m.raw)
		if err != nil {
			m.logger.Warn("Error in field processor plugin", "plugin", p.Name, "field", field, "error", err)
			continue
		}
		v = strings.TrimSpace(out)
	}
	return v
}

func runProcessor(p plugin.Plugin, field string, value string, row map[string]string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.FieldProcessor(field, value, row)
}

// amount converts a raw amount to cents. Empty amounts become 0 with a warning.
func (m *mapping) amount(raw string, txn string) (int64, error) {
	cents, empty, err := parseCents(raw)
	if err != nil {
		return 0, err
	}
	if empty {
		m.logger.Warn("Empty amount value, defaulting to 0", "transaction", txn)
	}
	return cents, nil
}

// succeededAt resolves the donation time from separate date and time fields. When either
// is missing, or parse fails, the current time is used instead.
func (m *mapping) succeededAt(txn string, date string, clock string, parse func() (time.Time, error)) string {
	if date == "" || clock == "" {
		m.logger.Warn("Missing date or time for record "+txn, "transaction", txn, "date", date, "time", clock)
		return m.fallback(txn, "MISSING DATA FALLBACK")
	}

	t, err := parse()
	if err != nil {
		m.logger.Warn("Could not parse date or time for record "+txn,
			"transaction", txn, "date", date, "time", clock, "error", err)
		return m.fallback(txn, "PARSE FALLBACK")
	}

	return formatTime(t)
}

func (m *mapping) fallback(txn string, label string) string {
	v := formatTime(m.now.In(m.location))
	m.logger.Info(label+": using current time as donation time", "transaction", txn, "succeeded_at", v)
	return v
}
