package domain

import (
	"regexp"
	"strings"
)

var kenyanMSISDN = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone converts a Kenyan phone number to the 254XXXXXXXXX form the
// mobile-money gateway requires. Accepts 07.., 7.., 1.., +254.. and 254..
// inputs; anything else is ErrInvalidPhoneNumber.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "254"):
		// already international
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7") || strings.HasPrefix(cleaned, "1"):
		cleaned = "254" + cleaned
	}

	if !kenyanMSISDN.MatchString(cleaned) {
		return "", ErrInvalidPhoneNumber
	}
	return cleaned, nil
}
