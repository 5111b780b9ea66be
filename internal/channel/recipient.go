package channel

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalizer turns free-form phone input into a provider address.
type Normalizer struct {
	region string
	suffix string
}

// NewNormalizer builds a Normalizer. region is an optional ISO 3166 code such
// as "BR"; when set, national numbers get that region's country code.
func NewNormalizer(region, suffix string) Normalizer {
	return Normalizer{region: strings.ToUpper(strings.TrimSpace(region)), suffix: suffix}
}

func (n Normalizer) Normalize(raw string) (string, error) {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}

	digits := digitsOnly(raw)
	if digits == "" {
		return "", &ValidationError{Field: "recipient", Reason: "no digits in phone number"}
	}

	if n.region != "" && !strings.HasPrefix(strings.TrimSpace(raw), "+") {
		digits = n.withCountryCode(digits)
	}

	return digits + n.suffix, nil
}

// withCountryCode prefixes the region's country code only when digits cannot
// already be read as a full international number.
func (n Normalizer) withCountryCode(digits string) string {
	code := phonenumbers.GetCountryCodeForRegion(n.region)
	if code == 0 || strings.HasPrefix(digits, strconv.Itoa(code)) {
		return digits
	}
	if intl, err := phonenumbers.Parse("+"+digits, ""); err == nil && phonenumbers.IsValidNumber(intl) {
		return digits
	}

	num, err := phonenumbers.Parse(digits, n.region)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return digits
	}
	return strconv.Itoa(int(num.GetCountryCode())) + phonenumbers.GetNationalSignificantNumber(num)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
