package utils

import (
	"regexp"
	"strings"
)

// Accepts Safaricom/Airtel numbers in the formats customers actually type:
// 0712345678, 0112345678, +254712345678, 254112345678 and so on.
var kenyanPhonePattern = regexp.MustCompile(`^(07\d{8}|01\d{8}|\+2547\d{8}|\+2541\d{8}|2547\d{8}|2541\d{8})$`)

// ValidKenyanPhone reports whether the input is a recognizable Kenyan
// mobile-subscriber number.
func ValidKenyanPhone(phone string) bool {
	return kenyanPhonePattern.MatchString(strings.TrimSpace(phone))
}

// NormalizePhone converts any accepted format to the canonical wire form
// PayHero expects: plain digits with the 254 country code, no plus sign.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	p := digits.String()
	switch {
	case strings.HasPrefix(p, "254"):
		return p
	case strings.HasPrefix(p, "0"):
		return "254" + p[1:]
	default:
		return "254" + p
	}
}
