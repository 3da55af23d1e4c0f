package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peteski22/cdflow/internal/csvio"
	"github.com/peteski22/cdflow/internal/donation"
)

// NationBuilderClient deletes what an import created.
type NationBuilderClient interface {
	DeleteDonation(ctx context.Context, donationID string) error
	DeletePerson(ctx context.Context, personID string) error
}

// Ledger forgets donations that have been rolled back, so their rows can be imported again.
type Ledger interface {
	Forget(ctx context.Context, donationID string) (int, error)
}

// DeleterOption configures a Deleter.
type DeleterOption func(*Deleter)

// WithLedger removes deleted donations from the import ledger.
func WithLedger(ledger Ledger) DeleterOption {
	return func(d *Deleter) {
		d.ledger = ledger
	}
}

// Deleter rolls back a success row against NationBuilder: the donation first, then the
// person when the import created them.
type Deleter struct {
	dryRun        bool
	ledger        Ledger
	logger        *slog.Logger
	nationbuilder NationBuilderClient
}

// NewDeleter creates a Deleter. With dryRun set nothing is deleted.
func NewDeleter(client NationBuilderClient, dryRun bool, logger *slog.Logger, opts ...DeleterOption) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Deleter{
		dryRun:        dryRun,
		logger:        logger.With("component", "rollback"),
		nationbuilder: client,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessRow implements RowProcessor. A person matched rather than created by the import
// (no NB People Create Date) is left in place. The person is kept if the donation could
// not be deleted.
func (d *Deleter) ProcessRow(ctx context.Context, row *donation.Row, importType string) (bool, string) {
	donationID := row.Get(csvio.ColumnDonationID)
	if donationID == "" {
		return false, "No donation ID found in row"
	}

	logger := d.logger.With("import_type", importType, "donation_id", donationID)

	if err := d.delete(ctx, "donation", donationID, d.nationbuilder.DeleteDonation); err != nil {
		logger.Warn("failed to delete donation", "error", err)
		return false, fmt.Sprintf("FAILURE delete_donation %s: %v", donationID, err)
	}
	messages := []string{"SUCCESS delete_donation " + donationID}
	d.forget(ctx, logger, donationID)

	personID := row.Get(csvio.ColumnPeopleID)
	if personID == "" || row.Get(csvio.ColumnPeopleCreated) == "" {
		return true, strings.Join(messages, "; ")
	}

	if err := d.delete(ctx, "person", personID, d.nationbuilder.DeletePerson); err != nil {
		logger.Warn("failed to delete person", "person_id", personID, "error", err)
		messages = append(messages, fmt.Sprintf("FAILURE delete_person %s: %v", personID, err))
		return false, strings.Join(messages, "; ")
	}
	messages = append(messages, "SUCCESS delete_person "+personID)

	return true, strings.Join(messages, "; ")
}

// forget is best effort: a stale ledger entry only blocks a re-import until it is removed by hand.
func (d *Deleter) forget(ctx context.Context, logger *slog.Logger, donationID string) {
	if d.ledger == nil || d.dryRun {
		return
	}
	removed, err := d.ledger.Forget(ctx, donationID)
	if err != nil {
		logger.Warn("failed to remove donation from import ledger", "error", err)
		return
	}
	logger.Debug("removed donation from import ledger", "entries", removed)
}

func (d *Deleter) delete(ctx context.Context, kind, id string, fn func(context.Context, string) error) error {
	if d.dryRun {
		d.logger.Info("[DRY-RUN] would delete "+kind, "id", id)
		return nil
	}
	return fn(ctx, id)
}
