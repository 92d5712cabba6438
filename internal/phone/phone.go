// Package phone canonicalizes Kenyan mobile numbers into international format.
//
// The canonical form is used as the conversation key, so every inbound message
// from the same sender maps to the same conversation regardless of how the
// aggregator formats the number.
package phone

import (
	"regexp"
	"strings"
)

const (
	// CountryCallingCode is the Kenyan country calling code without the plus sign.
	CountryCallingCode = "254"
	// trunkPrefix is the domestic dialing prefix replaced by the country code.
	trunkPrefix = "0"
)

var nonDigit = regexp.MustCompile(`\D`)

// mobileLeadingDigits are the leading digits of bare 9-digit subscriber numbers
// that can be confidently classified as Kenyan mobiles.
var mobileLeadingDigits = []string{"7", "1", "2"}

// Normalize converts a raw phone number into canonical +254... form.
// Rules are applied in order, first match wins; input that cannot be
// confidently classified is returned unchanged. The function is pure and
// total: it never fails and never panics.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}

	// Strip everything except digits, keeping track of a leading plus.
	hasPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")
	digits := nonDigit.ReplaceAllString(raw, "")

	// Already international: +254 followed by a full subscriber number.
	if hasPlus && strings.HasPrefix(digits, CountryCallingCode) && len(digits) >= len(CountryCallingCode)+9 {
		return "+" + digits
	}

	// Domestic format with trunk prefix, e.g. 0722123456.
	if len(digits) == 10 && strings.HasPrefix(digits, trunkPrefix) {
		return "+" + CountryCallingCode + digits[1:]
	}

	// Bare subscriber number, e.g. 722123456.
	if len(digits) == 9 {
		for _, lead := range mobileLeadingDigits {
			if strings.HasPrefix(digits, lead) {
				return "+" + CountryCallingCode + digits
			}
		}
	}

	// Country code without the plus, e.g. 254722123456.
	if len(digits) == len(CountryCallingCode)+9 && strings.HasPrefix(digits, CountryCallingCode) {
		return "+" + digits
	}

	// Unparseable: hand back the original so the caller can decide.
	return raw
}

// ForSending strips the leading plus for transports that want bare digits.
func ForSending(phoneNumber string) string {
	return strings.TrimPrefix(phoneNumber, "+")
}
