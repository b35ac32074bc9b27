// Package v1 defines the VERSA-ID realtime notification contract.
//
// Messages are flat JSON objects discriminated by "type". Clients send
// "subscribe"; the server pushes "sso_request". The package is shared
// between the server and CLI clients to keep the wire format authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Subprotocol is offered by the server. Clients that do not request it are
// still accepted.
const Subprotocol = "versa.realtime.v1"

// Type constants (wire-stable).
const (
	// TypeSubscribe binds the connection to a VERSA-ID (client -> server).
	TypeSubscribe = "subscribe"

	// TypeSSORequest asks the subscriber to approve a sign-on (server -> client).
	TypeSSORequest = "sso_request"
)

// TimestampLayout renders millisecond UTC timestamps, e.g. 2024-01-02T03:04:05.678Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// maxVersaIDLen bounds the identifier accepted in a subscribe message.
const maxVersaIDLen = 128

// Inbound is any client -> server message. Only Type is required on the wire;
// per-type fields are validated by Validate.
type Inbound struct {
	Type    string `json:"type"`
	VersaID string `json:"versaId,omitempty"`
}

// ParseInbound decodes a client frame. Unknown fields are ignored.
func ParseInbound(data []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(data, &m); err != nil {
		return Inbound{}, err
	}
	return m, m.Validate()
}

// Validate performs structural validation.
func (m Inbound) Validate() error {
	switch m.Type {
	case "":
		return errors.New("missing field: type")
	case TypeSubscribe:
		v := strings.TrimSpace(m.VersaID)
		if v == "" {
			return errors.New("missing field: versaId")
		}
		if len(v) > maxVersaIDLen {
			return fmt.Errorf("versaId too long: max=%d", maxVersaIDLen)
		}
		return nil
	default:
		return fmt.Errorf("unknown type: %q", m.Type)
	}
}

// SSORequest is pushed to every connection subscribed under the target VERSA-ID.
type SSORequest struct {
	Type       string `json:"type"`
	SiteOrigin string `json:"siteOrigin"`
	Timestamp  string `json:"timestamp"`
}

// NewSSORequest builds an sso_request for siteOrigin stamped at ts.
func NewSSORequest(siteOrigin string, ts time.Time) SSORequest {
	return SSORequest{
		Type:       TypeSSORequest,
		SiteOrigin: siteOrigin,
		Timestamp:  ts.UTC().Format(TimestampLayout),
	}
}

// Time parses Timestamp.
func (m SSORequest) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, m.Timestamp)
}
