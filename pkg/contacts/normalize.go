package contacts

import "strings"

// NormalizePhone reduces a phone number to bare digits, keeping only the
// last ten so that numbers with and without a country prefix compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

var identifierCleaner = strings.NewReplacer("-", "", "(", "", ")", "", " ", "")

// looksLikeRawIdentifier reports whether a stored display name is really a
// phone number or an internal chat identifier rather than a human name.
func looksLikeRawIdentifier(name string) bool {
	if name == "" {
		return true
	}
	s := strings.TrimSpace(name)
	if strings.HasPrefix(s, "+") {
		return true
	}
	if cleaned := identifierCleaner.Replace(s); cleaned != "" && allDigits(cleaned) {
		return true
	}
	if rest, ok := strings.CutPrefix(s, "chat"); ok && rest != "" && allDigits(rest) {
		return true
	}
	return false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
