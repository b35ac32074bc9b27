// Package identity implements VERSA-ID's user records and the wallet-derived
// public identifier.
//
// It contains the credential store boundary (memory and Postgres), the
// VERSA-ID derivation, and the error kinds shared by the HTTP and WebSocket
// layers.
package identity
