package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/peteski22/cdflow/internal/nationbuilder"
)

// dryRunClient wraps a NationBuilderClient and logs write operations instead of executing them.
type dryRunClient struct {
	client  NationBuilderClient
	counter uint64
	logger  *slog.Logger
}

// newDryRunClient creates a new dryRunClient that wraps the given NationBuilderClient.
func newDryRunClient(client NationBuilderClient, logger *slog.Logger) *dryRunClient {
	return &dryRunClient{
		client: client,
		logger: logger,
	}
}

// CreateDonation logs what would be created and returns it with a fake ID.
func (d *dryRunClient) CreateDonation(
	_ context.Context,
	donation *nationbuilder.Donation,
) (*nationbuilder.Donation, error) {
	fakeID := d.nextFakeID("donation")

	d.logger.Info("[DRY-RUN] would create donation",
		"fake_id", fakeID,
		"amount_in_cents", donation.AmountInCents,
		"donor_id", donation.DonorID,
		"check_number", donation.CheckNumber,
		"succeeded_at", donation.SucceededAt)

	created := *donation
	created.ID = nationbuilder.ID(fakeID)
	return &created, nil
}

// CreateMembership logs what would be created.
func (d *dryRunClient) CreateMembership(
	_ context.Context,
	personID string,
	membership *nationbuilder.Membership,
) (*nationbuilder.Membership, error) {
	d.logger.Info("[DRY-RUN] would create membership",
		"person_id", personID,
		"name", membership.Name,
		"expires_on", membership.ExpiresOn)

	return membership, nil
}

// CreatePerson logs what would be created and returns it with a fake ID.
func (d *dryRunClient) CreatePerson(_ context.Context, person *nationbuilder.Person) (*nationbuilder.Person, error) {
	fakeID := d.nextFakeID("person")

	d.logger.Info("[DRY-RUN] would create person",
		"fake_id", fakeID,
		"first_name", person.FirstName,
		"last_name", person.LastName,
		"email", person.Email)

	created := *person
	created.ID = nationbuilder.ID(fakeID)
	created.CreatedAt = time.Now().Format(time.RFC3339)
	return &created, nil
}

// DetectCustomFields delegates to the real client.
func (d *dryRunClient) DetectCustomFields(ctx context.Context, names []string) (map[string]bool, error) {
	return d.client.DetectCustomFields(ctx, names)
}

// DonationIDByCheckNumber delegates to the real client.
func (d *dryRunClient) DonationIDByCheckNumber(ctx context.Context, checkNumber string, date string) (string, error) {
	return d.client.DonationIDByCheckNumber(ctx, checkNumber, date)
}

// PersonIDByEmail delegates to the real client.
func (d *dryRunClient) PersonIDByEmail(ctx context.Context, email string) (string, error) {
	return d.client.PersonIDByEmail(ctx, email)
}

// PersonIDByExternalID delegates to the real client.
func (d *dryRunClient) PersonIDByExternalID(ctx context.Context, externalID string) (string, string, error) {
	return d.client.PersonIDByExternalID(ctx, externalID)
}

// nextFakeID generates a unique fake ID for dry-run operations.
func (d *dryRunClient) nextFakeID(prefix string) string {
	n := atomic.AddUint64(&d.counter, 1)
	return fmt.Sprintf("dry-run-%s-%d", prefix, n)
}
