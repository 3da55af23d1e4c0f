package donation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// cleanAmount strips whitespace, thousands separators and currency symbols.
func cleanAmount(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, raw)
}

// parseCents converts a decimal currency amount to integer cents, rounding half away from zero.
// It reports whether the amount was empty so the caller can warn.
func parseCents(raw string) (cents int64, empty bool, err error) {
	cleaned := cleanAmount(raw)
	if cleaned == "" {
		return 0, true, nil
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	return d.Mul(hundred).Round(0).IntPart(), false, nil
}

// parseLayouts parses value with the first matching layout in loc.
func parseLayouts(value string, layouts []string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matches %q", value)
}

// combineDateTime joins a date and a time of day parsed separately.
func combineDateTime(date time.Time, clock time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
}

// timezoneAbbreviations maps the zone names PayPal exports to fixed offsets.
var timezoneAbbreviations = map[string]int{
	"UTC": 0,
	"GMT": 0,
	"EST": -5,
	"EDT": -4,
	"CST": -6,
	"CDT": -5,
	"MST": -7,
	"MDT": -6,
	"PST": -8,
	"PDT": -7,
	"AST": -4,
	"ADT": -3,
	"NST": -3,
	"HST": -10,
}

// zoneFor resolves a timezone name or abbreviation, falling back to def.
func zoneFor(name string, def *time.Location) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return def
	}
	if hours, ok := timezoneAbbreviations[strings.ToUpper(name)]; ok {
		return time.FixedZone(strings.ToUpper(name), hours*60*60)
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return def
}

// formatTime renders t as an ISO-8601 timestamp with offset.
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// countryCodes maps country names seen in exports to ISO codes.
var countryCodes = map[string]string{
	"canada":                   "CA",
	"united states":            "US",
	"united states of america": "US",
	"usa":                      "US",
	"united kingdom":           "GB",
	"great britain":            "GB",
	"france":                   "FR",
	"germany":                  "DE",
	"australia":                "AU",
	"mexico":                   "MX",
}

// countryCode converts a country name or code to an ISO alpha-2 code. Unknown names are kept.
func countryCode(value string) string {
	value = strings.TrimSpace(value)
	if len(value) == 2 {
		return strings.ToUpper(value)
	}
	if code, ok := countryCodes[strings.ToLower(value)]; ok {
		return code
	}
	return value
}

// languageCodes maps language names to ISO 639-1 codes.
var languageCodes = map[string]string{
	"english":  "en",
	"anglais":  "en",
	"french":   "fr",
	"français": "fr",
	"francais": "fr",
	"spanish":  "es",
	"español":  "es",
	"german":   "de",
	"chinese":  "zh",
}

// languageCode converts a language name or code to an ISO 639-1 code, or "" when unknown.
func languageCode(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if code, ok := languageCodes[value]; ok {
		return code
	}
	if len(value) == 2 && isLetters(value) {
		return value
	}
	// Locale forms such as en-CA or fr_CA.
	if len(value) > 2 && (value[2] == '-' || value[2] == '_') && isLetters(value[:2]) {
		return value[:2]
	}
	return ""
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// truncate limits s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
