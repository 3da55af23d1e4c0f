package plugin

// Membership is a membership a plugin asks the importer to create for the donor.
type Membership struct {
	// Months is the membership length; zero means open ended.
	Months int

	// Name is the membership type name in the CRM.
	Name string
}

// Signals carries out-of-band control state from row transformers to the mapper and
// import service. Unset overrides leave the adapter's own values in place.
type Signals struct {
	checkNumber  *string
	membership   *Membership
	paymentType  *string
	skip         bool
	skipReason   string
	trackingCode *string
}

// Skip marks the row so the import service does not submit it.
func (s *Signals) Skip(reason string) {
	s.skip = true
	s.skipReason = reason
}

// SetCheckNumber overrides the record's check number.
func (s *Signals) SetCheckNumber(v string) {
	s.checkNumber = &v
}

// SetMembership requests a membership for the donor once the donation is created.
func (s *Signals) SetMembership(name string, months int) {
	s.membership = &Membership{Months: months, Name: name}
}

// SetPaymentType overrides the record's payment type label.
func (s *Signals) SetPaymentType(v string) {
	s.paymentType = &v
}

// SetTrackingCode overrides the record's tracking code slug.
func (s *Signals) SetTrackingCode(v string) {
	s.trackingCode = &v
}

// CheckNumber returns the check number override, if set.
func (s *Signals) CheckNumber() (string, bool) {
	return deref(s.checkNumber)
}

// Membership returns the requested membership, or nil.
func (s *Signals) Membership() *Membership {
	return s.membership
}

// PaymentType returns the payment type override, if set.
func (s *Signals) PaymentType() (string, bool) {
	return deref(s.paymentType)
}

// Skipped reports whether a plugin asked for the row to be skipped, and why.
func (s *Signals) Skipped() (bool, string) {
	return s.skip, s.skipReason
}

// TrackingCode returns the tracking code override, if set.
func (s *Signals) TrackingCode() (string, bool) {
	return deref(s.trackingCode)
}

func deref(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}
