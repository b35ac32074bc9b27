package password

import "strings"

// Hash validates password against the policy and hashes it with the configured algorithm.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	switch c.Algorithm {
	case AlgorithmScrypt, "":
		return c.hashScrypt(password)
	case AlgorithmArgon2id:
		return c.hashArgon2id(password)
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

// Verify checks whether password matches the given encoded hash.
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidHash) for malformed/unsupported hashes.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	if strings.HasPrefix(encodedHash, "$argon2id$") {
		return c.verifyArgon2id(encodedHash, password)
	}
	return c.verifyScrypt(encodedHash, password)
}

// DummyHash returns a well-formed hash of a fixed throwaway password. Callers
// verify against it when the account does not exist, keeping login timing flat.
func (c Config) DummyHash() string {
	h, err := c.hashUnchecked("versa-dummy-password")
	if err != nil {
		return ""
	}
	return h
}

func (c Config) hashUnchecked(password string) (string, error) {
	if c.Algorithm == AlgorithmArgon2id {
		return c.hashArgon2id(password)
	}
	return c.hashScrypt(password)
}
