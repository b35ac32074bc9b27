package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// VersaIDPrefix is the fixed textual tag of every derived identifier.
	VersaIDPrefix = "VERSA-"

	// versaIDHexLen is the number of digest hex characters kept.
	versaIDHexLen = 8
)

// DeriveVersaID returns the public identifier of a wallet address:
// "VERSA-" followed by the first 8 hex characters of sha256(lower(address)).
//
// The function is pure. The same address (in any letter case) always yields
// the same identifier.
func DeriveVersaID(address string) (string, error) {
	const op = "identity.DeriveVersaID"

	addr := NormalizeWalletAddress(address)
	if addr == "" {
		return "", invalid(op, "wallet address is required")
	}

	sum := sha256.Sum256([]byte(addr))
	return VersaIDPrefix + hex.EncodeToString(sum[:])[:versaIDHexLen], nil
}

// LooksLikeVersaID reports whether s has the shape produced by DeriveVersaID.
func LooksLikeVersaID(s string) bool {
	if !strings.HasPrefix(s, VersaIDPrefix) {
		return false
	}
	rest := s[len(VersaIDPrefix):]
	if len(rest) != versaIDHexLen {
		return false
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
