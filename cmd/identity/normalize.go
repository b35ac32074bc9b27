package identity

import "strings"

// NormalizeUsername trims surrounding whitespace. Usernames are otherwise
// matched exactly, so "Alice" and "alice" are distinct accounts.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail trims surrounding whitespace. Emails are matched exactly.
func NormalizeEmail(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeWalletAddress performs the case-insensitive canonicalization used
// by DeriveVersaID. Hex wallet addresses are case-insensitive (EIP-55 mixed
// case is only a checksum), so "0xABC" and "0xabc" are the same wallet.
func NormalizeWalletAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeVersaID canonicalizes a client-supplied VERSA-ID: surrounding
// whitespace is dropped and the "VERSA-" tag is upper-cased, while the hex
// suffix is lower-cased to match DeriveVersaID output.
func NormalizeVersaID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(VersaIDPrefix) && strings.EqualFold(s[:len(VersaIDPrefix)], VersaIDPrefix) {
		return VersaIDPrefix + strings.ToLower(s[len(VersaIDPrefix):])
	}
	return s
}
