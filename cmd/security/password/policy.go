package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate applies Policy to a candidate password. Lengths are counted in
// runes. The default policy only rejects the empty string and oversized
// input; RejectVeryWeak adds the trivial-password rules below.
func (c Config) Validate(password string) error {
	switch n := utf8.RuneCountInString(password); {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && isTrivial(password) {
		return ErrWeakPassword
	}
	return nil
}

// commonPasswords is a short deny list, not a breach corpus.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {},
	"123456": {}, "12345678": {}, "123456789": {},
	"qwerty": {}, "qwerty123": {}, "letmein": {},
	"11111111": {}, "versa": {}, "versaid": {},
}

// trivialRules each flag one obviously guessable shape.
var trivialRules = []func(s string) bool{
	func(s string) bool { return s == "" },
	repeatsOneRune,
	func(s string) bool { return utf8.RuneCountInString(s) < 12 && strings.IndexFunc(s, notDigit) < 0 },
	func(s string) bool { _, ok := commonPasswords[strings.ToLower(s)]; return ok },
}

func isTrivial(pw string) bool {
	s := strings.TrimSpace(pw)
	for _, rule := range trivialRules {
		if rule(s) {
			return true
		}
	}
	return false
}

func repeatsOneRune(s string) bool {
	first, size := utf8.DecodeRuneInString(s)
	return size > 0 && strings.Trim(s, string(first)) == ""
}

func notDigit(r rune) bool { return !unicode.IsDigit(r) }
