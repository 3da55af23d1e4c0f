// Package nationbuilder provides a client for the NationBuilder v1 REST API.
package nationbuilder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a NationBuilder record identifier. The API returns numeric ids; dry runs use
// synthetic string ids, so ID encodes as a JSON number only when it is numeric.
type ID string

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decoding id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	*id = ID(b)
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string {
	return string(id)
}

// Address is a postal address attached to a person or donation.
type Address struct {
	// Address1 is the first street line.
	Address1 string `json:"address1,omitempty"`

	// Address2 is the second street line.
	Address2 string `json:"address2,omitempty"`

	// City is the city name.
	City string `json:"city,omitempty"`

	// CountryCode is the ISO 3166 alpha-2 country code.
	CountryCode string `json:"country_code,omitempty"`

	// State is the state or province.
	State string `json:"state,omitempty"`

	// Zip is the postal or ZIP code.
	Zip string `json:"zip,omitempty"`
}

// Donation is a NationBuilder donation.
type Donation struct {
	// AmountInCents is the donation amount in cents.
	AmountInCents int64 `json:"amount_in_cents"`

	// BillingAddress is the donor's billing address.
	BillingAddress *Address `json:"billing_address,omitempty"`

	// CheckNumber is the source system's transaction reference.
	CheckNumber string `json:"check_number,omitempty"`

	// CustomValues holds nation specific donation fields, merged into the payload.
	CustomValues map[string]string `json:"-"`

	// DonorID links the donation to a person.
	DonorID ID `json:"donor_id,omitempty"`

	// Email is the donor email address.
	Email string `json:"email,omitempty"`

	// Employer is the donor's employer.
	Employer string `json:"employer,omitempty"`

	// FirstName is the donor first name.
	FirstName string `json:"first_name,omitempty"`

	// ID is the donation identifier.
	ID ID `json:"id,omitempty"`

	// LastName is the donor last name.
	LastName string `json:"last_name,omitempty"`

	// PaymentTypeName is the payment type label.
	PaymentTypeName string `json:"payment_type_name,omitempty"`

	// SucceededAt is the ISO-8601 time the donation succeeded.
	SucceededAt string `json:"succeeded_at,omitempty"`

	// TrackingCodeSlug is the tracking code used for reporting.
	TrackingCodeSlug string `json:"tracking_code_slug,omitempty"`
}

// MarshalJSON implements json.Marshaler, adding CustomValues as top-level fields.
func (d Donation) MarshalJSON() ([]byte, error) {
	type plain Donation
	b, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	if len(d.CustomValues) == 0 {
		return b, nil
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, v := range d.CustomValues {
		if _, exists := fields[k]; exists {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

// Membership is a person's membership of a named membership type.
type Membership struct {
	// ExpiresOn is the ISO-8601 expiry time, empty for open ended memberships.
	ExpiresOn string `json:"expires_on,omitempty"`

	// Name is the membership type name.
	Name string `json:"name"`

	// PersonID is the member.
	PersonID ID `json:"person_id,omitempty"`

	// StartedAt is the ISO-8601 start time.
	StartedAt string `json:"started_at,omitempty"`

	// Status is the membership status (active, grace period, expired, canceled).
	Status string `json:"status,omitempty"`
}

// Person is a NationBuilder person.
type Person struct {
	// CreatedAt is when the person was created.
	CreatedAt string `json:"created_at,omitempty"`

	// Email is the primary email address.
	Email string `json:"email,omitempty"`

	// EmailOptIn records consent to receive email.
	EmailOptIn bool `json:"email_opt_in"`

	// Employer is the person's employer.
	Employer string `json:"employer,omitempty"`

	// ExternalID is an identifier from another system.
	ExternalID string `json:"external_id,omitempty"`

	// FirstName is the first name.
	FirstName string `json:"first_name,omitempty"`

	// ID is the person identifier.
	ID ID `json:"id,omitempty"`

	// Language is the preferred language code.
	Language string `json:"language,omitempty"`

	// LastName is the last name.
	LastName string `json:"last_name,omitempty"`

	// MiddleName is the middle name.
	MiddleName string `json:"middle_name,omitempty"`

	// Phone is the phone number.
	Phone string `json:"phone,omitempty"`

	// PrimaryAddress is the person's primary address.
	PrimaryAddress *Address `json:"primary_address,omitempty"`
}

// donationEnvelope wraps a donation in request and response bodies.
type donationEnvelope struct {
	// Donation is the wrapped donation.
	Donation *Donation `json:"donation"`
}

// donationList is a page of donations.
type donationList struct {
	// Results are the donations on this page.
	Results []json.RawMessage `json:"results"`
}

// membershipEnvelope wraps a membership in request and response bodies.
type membershipEnvelope struct {
	// Membership is the wrapped membership.
	Membership *Membership `json:"membership"`
}

// membershipList is a page of memberships.
type membershipList struct {
	// Results are the memberships on this page.
	Results []Membership `json:"results"`
}

// personEnvelope wraps a person in request and response bodies.
type personEnvelope struct {
	// Person is the wrapped person.
	Person *Person `json:"person"`
}

// personList is a page of people.
type personList struct {
	// Results are the people on this page.
	Results []Person `json:"results"`
}

// tokenResponse represents the OAuth token response from NationBuilder.
type tokenResponse struct {
	// AccessToken is the OAuth access token.
	AccessToken string `json:"access_token"`

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is the token used to obtain new access tokens.
	RefreshToken string `json:"refresh_token"`

	// TokenType is the type of token (e.g., Bearer).
	TokenType string `json:"token_type"`
}
