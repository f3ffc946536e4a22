package sso

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhoneNumber returns the E.164 form of raw when it parses as a
// valid number for region. Anything else is returned trimmed so the
// unique constraint still applies to what the user typed.
func NormalizePhoneNumber(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
