package donation

import (
	"time"
)

// CanadaHelps column names.
const (
	chAddress1          = "DONOR ADDRESS 1"
	chAddress2          = "DONOR ADDRESS 2"
	chAmount            = "AMOUNT"
	chCity              = "DONOR CITY"
	chCompany           = "DONOR COMPANY NAME"
	chCountry           = "DONOR COUNTRY"
	chDate              = "DONATION DATE"
	chEmail             = "DONOR EMAIL ADDRESS"
	chFirstName         = "DONOR FIRST NAME"
	chLanguage          = "DONOR LANGUAGE"
	chLastName          = "DONOR LAST NAME"
	chPhone             = "DONOR PHONE NUMBER"
	chPostalCode        = "DONOR POSTAL/ZIP CODE"
	chProvince          = "DONOR PROVINCE/STATE"
	chTime              = "DONATION TIME"
	chTransactionNumber = "TRANSACTION NUMBER"
)

const maxPostalCodeLength = 10

var (
	chDateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}
	chTimeLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM", "3:04PM"}
)

// CanadaHelps reads the CanadaHelps donation export.
type CanadaHelps struct{}

// Name implements Adapter.
func (CanadaHelps) Name() string {
	return "CanadaHelps"
}

// RequiredFields implements Adapter.
func (CanadaHelps) RequiredFields() []string {
	return []string{chFirstName, chLastName, chEmail, chAmount, chDate, chTime, chTransactionNumber}
}

// ValidateHeaders implements Adapter.
func (a CanadaHelps) ValidateHeaders(headers []string) error {
	return validateHeaders(headers, a.RequiredFields())
}

// ValidateRow implements Adapter. Only the header presence matters; blank values are handled
// during mapping.
func (a CanadaHelps) ValidateRow(row *Row) error {
	return validateHeaders(row.Headers(), a.RequiredFields())
}

func (CanadaHelps) populate(m *mapping, rec *Record) error {
	txn := m.value(chTransactionNumber)
	rec.SourceID = txn

	rec.FirstName = m.value(chFirstName)
	rec.LastName = m.value(chLastName)
	rec.Email = m.value(chEmail)
	rec.Employer = m.value(chCompany)
	rec.Phone = m.value(chPhone)
	rec.Language = languageCode(m.value(chLanguage))
	rec.Address1 = m.value(chAddress1)
	rec.Address2 = m.value(chAddress2)
	rec.City = m.value(chCity)
	rec.State = m.value(chProvince)
	rec.Zip = truncate(m.value(chPostalCode), maxPostalCodeLength)
	rec.Country = countryCode(m.value(chCountry))

	cents, err := m.amount(m.value(chAmount), txn)
	if err != nil {
		return err
	}
	rec.AmountInCents = cents

	date, clock := m.value(chDate), m.value(chTime)
	rec.SucceededAt = m.succeededAt(txn, date, clock, func() (time.Time, error) {
		d, err := parseLayouts(date, chDateLayouts, m.location)
		if err != nil {
			return time.Time{}, err
		}
		c, err := parseLayouts(clock, chTimeLayouts, m.location)
		if err != nil {
			return time.Time{}, err
		}
		return combineDateTime(d, c, m.location), nil
	})

	return nil
}
