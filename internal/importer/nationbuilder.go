package importer

import (
	"context"

	"github.com/peteski22/cdflow/internal/nationbuilder"
)

// NationBuilderClient defines the NationBuilder operations required by the import service.
type NationBuilderClient interface {
	// CreateDonation creates a donation and returns it with its new id.
	CreateDonation(ctx context.Context, donation *nationbuilder.Donation) (*nationbuilder.Donation, error)

	// CreateMembership adds a membership to a person.
	CreateMembership(
		ctx context.Context,
		personID string,
		membership *nationbuilder.Membership,
	) (*nationbuilder.Membership, error)

	// CreatePerson creates a person and returns it with its new id.
	CreatePerson(ctx context.Context, person *nationbuilder.Person) (*nationbuilder.Person, error)

	// DetectCustomFields reports which of the named donation fields the nation exposes.
	DetectCustomFields(ctx context.Context, names []string) (map[string]bool, error)

	// DonationIDByCheckNumber returns the donation on date with the given check number.
	DonationIDByCheckNumber(ctx context.Context, checkNumber string, date string) (string, error)

	// PersonIDByEmail returns the id of the person matching email.
	PersonIDByEmail(ctx context.Context, email string) (string, error)

	// PersonIDByExternalID returns the id and email of the person with the given external id.
	PersonIDByExternalID(ctx context.Context, externalID string) (string, string, error)
}
