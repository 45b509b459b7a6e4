package phone

import (
	"errors"
	"strings"
	"unicode"
)

var ErrInvalid = errors.New("invalid phone number")

// Normalize canonicalizes a dialable number into a +<digits> form:
// separators are stripped, a leading 00 becomes +, and bare national
// numbers get the default country prefix. Numbers that still contain
// non-digits or fall outside 8..15 digits are rejected.
func Normalize(raw, defaultPrefix string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalid
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator, drop
		default:
			return "", ErrInvalid
		}
	}

	n := b.String()
	switch {
	case strings.HasPrefix(n, "+"):
		// already international
	case strings.HasPrefix(n, "00"):
		n = "+" + n[2:]
	case strings.HasPrefix(n, "0"):
		n = defaultPrefix + n[1:]
	default:
		n = defaultPrefix + n
	}

	digits := len(n) - 1
	if digits < 8 || digits > 15 {
		return "", ErrInvalid
	}
	return n, nil
}

// IsValid reports whether raw normalizes cleanly.
func IsValid(raw, defaultPrefix string) bool {
	_, err := Normalize(raw, defaultPrefix)
	return err == nil
}
