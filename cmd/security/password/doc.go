// Package password provides password hashing and verification utilities for VERSA-ID.
//
// Two encodings are supported:
// - scrypt (default): "<hex key>.<hex salt>", where the hex salt string itself is
//   the KDF salt input. This matches hashes written by earlier VERSA-ID deployments
//   and always means N=16384, r=8, p=1.
// - scrypt with any other cost: "$scrypt$n=..,r=..,p=..$<hex salt>$<hex key>".
// - Argon2id: PHC-like "$argon2id$v=19$m=..,t=..,p=..$<salt>$<hash>".
//
// Hash uses the configured algorithm; Verify dispatches on the stored encoding,
// so switching algorithms never invalidates existing accounts.
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes with parameters that exceed reasonable bounds.
package password
