package donation

import (
	"strings"
	"time"
)

// Generic column names. Lookups are case-insensitive.
const (
	genAddress1      = "address1"
	genAddress2      = "address2"
	genAmount        = "amount"
	genCity          = "city"
	genCountry       = "country"
	genDonationDate  = "donation_date"
	genEmail         = "email"
	genEmployer      = "employer"
	genFirstName     = "first_name"
	genLanguage      = "language"
	genLastName      = "last_name"
	genMiddleName    = "middle_name"
	genPaymentMethod = "payment_method"
	genPhone         = "phone"
	genState         = "state"
	genTransactionID = "transaction_id"
	genZip           = "zip"
)

const (
	genericDefaultCountry  = "CA"
	genericDefaultLanguage = "en"
	genericTrackingCode    = "generic_import"
	defaultPaymentType     = "Online"
)

var genericDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
}

var paymentTypes = map[string]string{
	"bank":          "Bank Transfer",
	"bank_transfer": "Bank Transfer",
	"card":          "Credit Card",
	"cash":          "Cash",
	"check":         "Check",
	"cheque":        "Check",
	"credit":        "Credit Card",
	"credit_card":   "Credit Card",
	"debit":         "Debit Card",
	"eft":           "Bank Transfer",
	"paypal":        "PayPal",
}

// Generic reads a simple spreadsheet with lowercase snake_case columns.
type Generic struct{}

// Name implements Adapter.
func (Generic) Name() string {
	return "Generic"
}

// RequiredFields implements Adapter.
func (Generic) RequiredFields() []string {
	return []string{genEmail, genAmount, genDonationDate, genFirstName, genLastName}
}

// ValidateHeaders implements Adapter.
func (a Generic) ValidateHeaders(headers []string) error {
	return validateHeaders(headers, a.RequiredFields())
}

// ValidateRow implements Adapter. Required fields must be present and non-blank.
func (a Generic) ValidateRow(row *Row) error {
	if missing := missingValues(row, a.RequiredFields()); len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

func (Generic) populate(m *mapping, rec *Record) error {
	txn := m.value(genTransactionID)
	if txn == "" {
		txn = "GENERIC_" + m.now.In(m.location).Format("20060102_150405")
	}
	rec.SourceID = txn

	rec.FirstName = m.value(genFirstName)
	rec.MiddleName = m.value(genMiddleName)
	rec.LastName = m.value(genLastName)
	rec.Email = m.value(genEmail)
	rec.Employer = m.value(genEmployer)
	rec.Phone = m.value(genPhone)
	rec.Address1 = m.value(genAddress1)
	rec.Address2 = m.value(genAddress2)
	rec.City = m.value(genCity)
	rec.State = m.value(genState)
	rec.Zip = m.value(genZip)

	rec.Country = genericDefaultCountry
	if c := m.value(genCountry); c != "" {
		rec.Country = countryCode(c)
	}
	rec.Language = genericDefaultLanguage
	if l := languageCode(m.value(genLanguage)); l != "" {
		rec.Language = l
	}

	cents, err := m.amount(m.value(genAmount), txn)
	if err != nil {
		return err
	}
	rec.AmountInCents = cents
	rec.SucceededAt = m.donationDate(m.value(genDonationDate))

	rec.CheckNumber = stringPtr(txn)
	rec.PaymentType = stringPtr(paymentType(m.value(genPaymentMethod)))
	rec.TrackingCode = stringPtr(genericTrackingCode)

	return nil
}

// donationDate parses a single date or datetime field, using the current time when it is
// empty or unparsable.
func (m *mapping) donationDate(value string) string {
	if value == "" {
		m.logger.Warn("Empty donation date, using current date")
		return formatTime(m.now.In(m.location))
	}

	t, err := parseLayouts(value, genericDateLayouts, m.location)
	if err != nil {
		m.logger.Warn("Could not parse donation date '"+value+"', using current date", "error", err)
		return formatTime(m.now.In(m.location))
	}
	return formatTime(t)
}

// paymentType maps a payment method to a NationBuilder payment type label. Unknown methods
// pass through unchanged.
func paymentType(method string) string {
	if method == "" {
		return defaultPaymentType
	}
	if label, ok := paymentTypes[strings.ToLower(method)]; ok {
		return label
	}
	return method
}
