package donation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		raw       string
		wantCents int64
		wantEmpty bool
		wantErr   bool
	}{
		"whole amount":         {raw: "25.00", wantCents: 2500},
		"no decimals":          {raw: "100", wantCents: 10000},
		"thousands separator":  {raw: "1,234.56", wantCents: 123456},
		"currency symbol":      {raw: "$ 10.10", wantCents: 1010},
		"negative refund":      {raw: "-12.34", wantCents: -1234},
		"rounds half up":       {raw: "0.005", wantCents: 1},
		"rounds binary traps":  {raw: "19.99", wantCents: 1999},
		"empty":                {raw: "", wantEmpty: true},
		"whitespace only":      {raw: "   ", wantEmpty: true},
		"not a number":         {raw: "ten dollars", wantErr: true},
		"two decimal points":   {raw: "1.2.3", wantErr: true},
		"surrounding spaces":   {raw: "  7.5 ", wantCents: 750},
		"euro symbol trailing": {raw: "3.00€", wantCents: 300},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cents, empty, err := parseCents(tc.raw)

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid amount")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCents, cents)
			require.Equal(t, tc.wantEmpty, empty)
		})
	}
}

func TestZoneFor(t *testing.T) {
	t.Parallel()

	est := zoneFor("est", time.UTC)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, est).Zone()
	require.Equal(t, -5*60*60, offset)

	require.Equal(t, time.UTC, zoneFor("", time.UTC))
	require.Equal(t, time.UTC, zoneFor("Not/AZone", time.UTC))
}

func TestCountryCode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		value string
		want  string
	}{
		"code is uppercased": {value: "ca", want: "CA"},
		"known name":         {value: "United States", want: "US"},
		"unknown name kept":  {value: "Atlantis", want: "Atlantis"},
		"empty":              {value: "", want: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, countryCode(tc.value))
		})
	}
}

func TestLanguageCode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		value string
		want  string
	}{
		"english name":   {value: "English", want: "en"},
		"french name":    {value: "Français", want: "fr"},
		"iso code":       {value: "FR", want: "fr"},
		"locale":         {value: "en-CA", want: "en"},
		"unknown":        {value: "Klingon", want: ""},
		"empty":          {value: "", want: ""},
		"digits ignored": {value: "12", want: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, languageCode(tc.value))
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "K1A 0A6", truncate("K1A 0A6", 10))
	require.Equal(t, "1234567890", truncate("12345678901234", 10))
	require.Equal(t, "ééé", truncate("éééé", 3))
}
