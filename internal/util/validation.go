package util

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// DigitsOnly strips every non-digit character.
func DigitsOnly(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// IsValidPhone reports whether s is a plausible phone number: 10 to 15 digits
// and nothing else. Opaque device identifiers issued by the transport (ids
// with @-suffixes, overlong numeric blobs) do not pass.
func IsValidPhone(s string) bool {
	if s == "" || strings.ContainsAny(s, "@:") {
		return false
	}
	if nonDigits.MatchString(s) {
		return false
	}
	return len(s) >= 10 && len(s) <= 15
}

// ExtractPhone pulls a valid phone number out of a transport identifier such
// as "5511999990000@s.whatsapp.net". Returns ok=false when the identifier
// carries no usable number.
func ExtractPhone(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	head := id
	if i := strings.IndexAny(id, "@:"); i >= 0 {
		head = id[:i]
	}
	digits := DigitsOnly(head)
	if len(digits) >= 10 && len(digits) <= 15 {
		return digits, true
	}
	return "", false
}

// IsMenuToken reports whether text is a bare numeric menu selection.
// Menu tokens skip the anti-spam buffer and reach the bot immediately.
func IsMenuToken(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || len(t) > 3 {
		return false
	}
	for _, c := range t {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
