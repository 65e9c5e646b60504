// Package msisdn normalizes Kenyan mobile numbers to the 254XXXXXXXXX form
// expected by M-Pesa and the SMS provider.
package msisdn

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalid = errors.New("invalid phone number")

var valid = regexp.MustCompile(`^254[17]\d{8}$`)

// Normalize accepts 07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX, 254XXXXXXXXX and
// +254XXXXXXXXX. Spaces and dashes are ignored.
func Normalize(raw string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")

	switch {
	case strings.HasPrefix(s, "254"):
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	}

	if !valid.MatchString(s) {
		return "", ErrInvalid
	}
	return s, nil
}

// International renders a normalized number with a leading plus.
func International(n string) string {
	if strings.HasPrefix(n, "+") {
		return n
	}
	return "+" + n
}
