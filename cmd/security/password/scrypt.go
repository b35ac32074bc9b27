package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// legacyScrypt are the parameters behind every "<hex key>.<hex salt>" hash.
// That encoding has no room for parameters, so it is only written when the
// configured cost matches and always verified with these values.
var legacyScrypt = ScryptParams{N: 16384, R: 8, P: 1}

const scryptPrefix = "$scrypt$"

func (p ScryptParams) legacy() bool {
	return p.N == legacyScrypt.N && p.R == legacyScrypt.R && p.P == legacyScrypt.P
}

func (c Config) hashScrypt(password string) (string, error) {
	salt := make([]byte, c.Scrypt.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	// The hex text is the salt input, not the raw bytes.
	key, err := scrypt.Key([]byte(password), []byte(saltHex), c.Scrypt.N, c.Scrypt.R, c.Scrypt.P, c.Scrypt.KeyLength)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}

	if c.Scrypt.legacy() {
		return hex.EncodeToString(key) + "." + saltHex, nil
	}
	return fmt.Sprintf("%sn=%d,r=%d,p=%d$%s$%s", scryptPrefix, c.Scrypt.N, c.Scrypt.R, c.Scrypt.P, saltHex, hex.EncodeToString(key)), nil
}

// verifyScrypt uses the parameters recorded with the hash, never the
// configured ones, so changing VERSA_SCRYPT_* keeps old accounts working.
func (c Config) verifyScrypt(encodedHash, password string) (bool, error) {
	params, expected, saltHex, err := decodeScrypt(encodedHash)
	if err != nil {
		return false, err
	}

	key, err := scrypt.Key([]byte(password), []byte(saltHex), params.N, params.R, params.P, len(expected))
	if err != nil {
		return false, ErrInvalidHash
	}
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// decodeScrypt parses "<hex key>.<hex salt>" or
// "$scrypt$n=<N>,r=<r>,p=<p>$<hex salt>$<hex key>".
func decodeScrypt(encoded string) (ScryptParams, []byte, string, error) {
	params := legacyScrypt
	var keyHex, saltHex string

	if rest, ok := strings.CutPrefix(encoded, scryptPrefix); ok {
		parts := strings.Split(rest, "$")
		if len(parts) != 3 {
			return ScryptParams{}, nil, "", ErrInvalidHash
		}
		if _, err := fmt.Sscanf(parts[0], "n=%d,r=%d,p=%d", &params.N, &params.R, &params.P); err != nil {
			return ScryptParams{}, nil, "", ErrInvalidHash
		}
		if params.N < 2 || params.N > 1<<20 || params.N&(params.N-1) != 0 ||
			params.R < 1 || params.R > 32 || params.P < 1 || params.P > 16 {
			return ScryptParams{}, nil, "", ErrInvalidHash
		}
		saltHex, keyHex = parts[1], parts[2]
	} else {
		var ok bool
		keyHex, saltHex, ok = strings.Cut(encoded, ".")
		if !ok || strings.Contains(saltHex, ".") {
			return ScryptParams{}, nil, "", ErrInvalidHash
		}
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) < 16 || len(key) > 128 {
		return ScryptParams{}, nil, "", ErrInvalidHash
	}
	if len(saltHex) < 16 || len(saltHex) > 128 {
		return ScryptParams{}, nil, "", ErrInvalidHash
	}
	if _, err := hex.DecodeString(saltHex); err != nil {
		return ScryptParams{}, nil, "", ErrInvalidHash
	}
	return params, key, saltHex, nil
}
