// Package realtime implements the VERSA-ID notification channel.
//
// A WSGateway upgrades HTTP requests to WebSocket connections and registers
// them with a Hub. Clients subscribe under a VERSA-ID; the Hub fans
// sso_request messages out to every connection subscribed under the target
// identifier. Subscriptions live in process memory and are never persisted.
package realtime
