// Package otp issues and verifies short-lived one-time codes bound to a VERSA-ID.
//
// At most one live code exists per identifier; issuing again overwrites it.
// A code verifies at most once: a successful verification deletes the entry
// with compare-and-delete, so two concurrent verifiers cannot both succeed.
// Entries older than the TTL (5 minutes by default) fail closed and are
// deleted on the first verification attempt.
package otp
