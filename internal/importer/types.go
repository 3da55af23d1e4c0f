// Package importer imports donation export files into NationBuilder.
package importer

import (
	"context"

	"github.com/peteski22/cdflow/internal/donation"
)

// Request describes one file to import.
type Request struct {
	// Adapter is the format of the file.
	Adapter donation.Adapter

	// Aborted reports whether the import should stop before the next row. Optional.
	Aborted func() bool

	// FilePath is the CSV file to import.
	FilePath string

	// JobContext is copied onto every record. Optional.
	JobContext *donation.JobContext

	// Progress is called after each row with the number of rows handled so far. Optional.
	Progress func(done int, total int)
}

// Result contains the outcome of an import.
type Result struct {
	// Aborted indicates the import stopped early on request.
	Aborted bool

	// DryRun indicates this was a dry-run (no writes to NationBuilder).
	DryRun bool

	// Failed is the number of rows written to the fail file.
	Failed int

	// FailFile is the path of the fail CSV.
	FailFile string

	// PeopleCreated is the number of people created.
	PeopleCreated int

	// Skipped is the number of rows a plugin asked to skip.
	Skipped int

	// SuccessFile is the path of the success CSV.
	SuccessFile string

	// Succeeded is the number of donations created.
	Succeeded int

	// Total is the number of data rows in the file.
	Total int
}

// RowResult contains the outcome of importing a single row.
type RowResult struct {
	// DonationID is the created donation.
	DonationID string

	// Error is set when the row failed.
	Error error

	// PersonCreated indicates a new person was created for the donor.
	PersonCreated bool

	// PersonCreatedAt is the creation time of a person created for the row.
	PersonCreatedAt string

	// PersonID is the donor.
	PersonID string

	// Skipped indicates a plugin asked for the row not to be imported.
	Skipped bool
}

// Ledger remembers which check numbers were imported, across runs.
type Ledger interface {
	// DonationID returns the donation previously imported for checkNumber, if any.
	DonationID(ctx context.Context, checkNumber string) (string, bool, error)

	// Record stores the donation imported for checkNumber.
	Record(ctx context.Context, checkNumber string, donationID string) error
}
