package donation

import (
	"encoding/json"
	"time"

	"github.com/peteski22/cdflow/internal/nationbuilder"
	"github.com/peteski22/cdflow/internal/plugin"
)

// JobContext identifies the job a record was mapped for. It is informational only.
type JobContext struct {
	// JobID is the import job identifier.
	JobID string `json:"job_id,omitempty"`

	// MachineInfo describes the host running the import.
	MachineInfo string `json:"machine_info,omitempty"`
}

// Record is a canonical donation, independent of the source format.
type Record struct {
	// Address1 is the first street line.
	Address1 string

	// Address2 is the second street line.
	Address2 string

	// AmountInCents is the donation amount in cents. Negative values are refunds.
	AmountInCents int64

	// CheckNumber is the external transaction reference, nil when no source or plugin set one.
	CheckNumber *string

	// City is the city name.
	City string

	// Country is the ISO country code.
	Country string

	// CustomValues holds nation specific donation fields copied from the row.
	CustomValues map[string]string

	// Email is the donor email address.
	Email string

	// Employer is the donor's employer.
	Employer string

	// FirstName is the donor first name.
	FirstName string

	// JobContext is the job the record belongs to, if any.
	JobContext *JobContext

	// Language is the donor's language code.
	Language string

	// LastName is the donor last name.
	LastName string

	// Membership is a membership a plugin requested for the donor.
	Membership *plugin.Membership

	// MiddleName is the donor middle name.
	MiddleName string

	// PaymentType is the payment type label, nil when unknown.
	PaymentType *string

	// Phone is the donor phone number.
	Phone string

	// Row is the raw row after row transformers ran.
	Row *Row

	// Skip is set when a plugin asked for the row not to be submitted.
	Skip bool

	// SkipReason explains Skip.
	SkipReason string

	// SourceID is the platform's own transaction identifier.
	SourceID string

	// State is the state or province.
	State string

	// SucceededAt is the ISO-8601 time the donation succeeded. It is never empty.
	SucceededAt string

	// TrackingCode is the tracking code slug, nil when unknown.
	TrackingCode *string

	// Zip is the postal or ZIP code.
	Zip string
}

// TransactionID returns the best available identifier for log messages.
func (r *Record) TransactionID() string {
	if r.CheckNumber != nil && *r.CheckNumber != "" {
		return *r.CheckNumber
	}
	return r.SourceID
}

// SucceededDate returns the YYYY-MM-DD date of SucceededAt, or "" if it cannot be parsed.
func (r *Record) SucceededDate() string {
	t, err := time.Parse(time.RFC3339, r.SucceededAt)
	if err != nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

// ToPerson converts the record to a NationBuilder person.
func (r *Record) ToPerson() *nationbuilder.Person {
	if r == nil {
		return nil
	}

	return &nationbuilder.Person{
		Email:          r.Email,
		Employer:       r.Employer,
		FirstName:      r.FirstName,
		Language:       r.Language,
		LastName:       r.LastName,
		MiddleName:     r.MiddleName,
		Phone:          r.Phone,
		PrimaryAddress: r.address(),
	}
}

// ToDonation converts the record to a NationBuilder donation for the given donor.
func (r *Record) ToDonation(personID string) *nationbuilder.Donation {
	if r == nil {
		return nil
	}

	d := &nationbuilder.Donation{
		AmountInCents:  r.AmountInCents,
		BillingAddress: r.address(),
		DonorID:        nationbuilder.ID(personID),
		Email:          r.Email,
		Employer:       r.Employer,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		SucceededAt:    r.SucceededAt,
	}
	if r.CheckNumber != nil {
		d.CheckNumber = *r.CheckNumber
	}
	if r.PaymentType != nil {
		d.PaymentTypeName = *r.PaymentType
	}
	if r.TrackingCode != nil {
		d.TrackingCodeSlug = *r.TrackingCode
	}
	if len(r.CustomValues) > 0 {
		d.CustomValues = make(map[string]string, len(r.CustomValues))
		for k, v := range r.CustomValues {
			d.CustomValues[k] = v
		}
	}

	return d
}

// JSON returns the record's person and donation payloads with the job context. The importer
// writes it to the debug log for every mapped row, so exported import logs carry the job.
func (r *Record) JSON() ([]byte, error) {
	return json.Marshal(struct {
		Donation *nationbuilder.Donation `json:"donation"`
		Job      *JobContext             `json:"job,omitempty"`
		Person   *nationbuilder.Person   `json:"person"`
	}{
		Donation: r.ToDonation(""),
		Job:      r.JobContext,
		Person:   r.ToPerson(),
	})
}

func (r *Record) address() *nationbuilder.Address {
	a := &nationbuilder.Address{
		Address1:    r.Address1,
		Address2:    r.Address2,
		City:        r.City,
		CountryCode: r.Country,
		State:       r.State,
		Zip:         r.Zip,
	}
	if *a == (nationbuilder.Address{}) {
		return nil
	}
	return a
}
