package password

import (
	"unicode"
	"unicode/utf8"
)

// Validate applies the password policy for c and is the single source of
// policy errors: length in runes, the bcrypt input cap in bytes when bcrypt
// is selected, and the optional weak-pattern check.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return PolicyError{Kind: ErrPasswordTooShort, Limit: c.Policy.MinLength, Unit: "characters"}
	}
	if n > c.Policy.MaxLength {
		return PolicyError{Kind: ErrPasswordTooLong, Limit: c.Policy.MaxLength, Unit: "characters"}
	}
	// bcrypt silently ignores input past 72 bytes; refuse it instead.
	if c.Algorithm == AlgorithmBcrypt && len(password) > bcryptMaxInputBytes {
		return PolicyError{Kind: ErrPasswordTooLong, Limit: bcryptMaxInputBytes, Unit: "bytes"}
	}
	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return PolicyError{Kind: ErrWeakPassword}
	}
	return nil
}

// looksVeryWeak matches the two patterns LOGVAULT_PASSWORD_REJECT_VERY_WEAK
// covers: one repeated character, and digits only with fewer than 12 runes.
func looksVeryWeak(pw string) bool {
	first, _ := utf8.DecodeRuneInString(pw)
	sameChar, digitsOnly := true, true
	for _, r := range pw {
		if r != first {
			sameChar = false
		}
		if !unicode.IsDigit(r) {
			digitsOnly = false
		}
	}
	return sameChar || (digitsOnly && utf8.RuneCountInString(pw) < 12)
}
