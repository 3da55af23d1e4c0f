package donation

import (
	"strings"
	"time"
)

// PayPal column names.
const (
	ppAddress1      = "Address Line 1"
	ppAddress2      = "Address Line 2/District/Neighborhood"
	ppCity          = "Town/City"
	ppCountry       = "Country"
	ppDate          = "Date"
	ppEmail         = "From Email Address"
	ppGross         = "Gross"
	ppName          = "Name"
	ppPhone         = "Contact Phone Number"
	ppPostalCode    = "Zip/Postal Code"
	ppState         = "State/Province/Region/County/Territory/Prefecture/Republic"
	ppTime          = "Time"
	ppTimeZone      = "TimeZone"
	ppTransactionID = "Transaction ID"
)

var ppDateTimeLayouts = []string{"02/01/2006 15:04:05", "02/01/2006 15:04", "2006-01-02 15:04:05"}

// PayPal reads the PayPal activity download.
type PayPal struct{}

// Name implements Adapter.
func (PayPal) Name() string {
	return "PayPal"
}

// RequiredFields implements Adapter.
func (PayPal) RequiredFields() []string {
	return []string{ppDate, ppTime, ppName, ppEmail, ppGross, ppTransactionID}
}

// ValidateHeaders implements Adapter.
func (a PayPal) ValidateHeaders(headers []string) error {
	return validateHeaders(headers, a.RequiredFields())
}

// ValidateRow implements Adapter. Transaction types and statuses are not filtered.
func (a PayPal) ValidateRow(row *Row) error {
	if err := validateHeaders(row.Headers(), a.RequiredFields()); err != nil {
		return err
	}
	if row.Get(ppName) == "" && row.Get(ppEmail) == "" {
		return &ValidationError{Reason: "either Name or Email must have a value"}
	}
	return nil
}

func (PayPal) populate(m *mapping, rec *Record) error {
	txn := m.value(ppTransactionID)
	rec.SourceID = txn

	rec.FirstName, rec.LastName = splitName(m.value(ppName))
	rec.Email = m.value(ppEmail)
	rec.Phone = m.value(ppPhone)
	rec.Address1 = m.value(ppAddress1)
	rec.Address2 = m.value(ppAddress2)
	rec.City = m.value(ppCity)
	rec.State = m.value(ppState)
	rec.Zip = m.value(ppPostalCode)
	rec.Country = countryCode(m.value(ppCountry))

	cents, err := m.amount(m.value(ppGross), txn)
	if err != nil {
		return err
	}
	rec.AmountInCents = cents

	date, clock := m.value(ppDate), m.value(ppTime)
	loc := zoneFor(m.value(ppTimeZone), m.location)
	rec.SucceededAt = m.succeededAt(txn, date, clock, func() (time.Time, error) {
		return parseLayouts(date+" "+clock, ppDateTimeLayouts, loc)
	})

	return nil
}

// splitName returns the first and last words of a full name. Middle words are dropped.
func splitName(name string) (first string, last string) {
	words := strings.Fields(name)
	switch len(words) {
	case 0:
		return "", ""
	case 1:
		return words[0], ""
	default:
		return words[0], words[len(words)-1]
	}
}
