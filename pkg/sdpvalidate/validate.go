// Package sdpvalidate validates SDP session descriptions against the
// syntactic subset of RFC 8866 this stack requires before accepting an
// offer or answer. It never interprets the SDP body beyond that
// syntactic contract — media negotiation, codec selection and the rest
// of offer/answer are explicitly out of scope for this core.
package sdpvalidate

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// Error reports which part of the SDP contract a session description
// violates.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sdp: %s: %s", e.Field, e.Reason)
}

// Parse unmarshals raw SDP text and validates it per Validate. It
// returns the parsed session alongside any validation error so callers
// can inspect a syntactically-parseable-but-invalid body.
func Parse(body []byte) (*sdp.SessionDescription, error) {
	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(body); err != nil {
		return nil, &Error{Field: "body", Reason: err.Error()}
	}
	if err := Validate(sd); err != nil {
		return sd, err
	}
	return sd, nil
}

// Validate checks a parsed session description against this core's
// SDP acceptance contract:
//   - v=0 exactly.
//   - origin and connection net_type "IN", addr_type IP4/IP6, address
//     parses as IPv4, IPv6 (optionally bracketed), or a syntactically
//     valid hostname; IPv4 multicast addresses may carry /ttl or
//     /ttl/count.
//   - session name non-empty.
//   - at least one t= line.
//   - each m= line has at least one format and either session-level or
//     media-level connection information.
func Validate(sd *sdp.SessionDescription) error {
	if sd.Version != 0 {
		return &Error{Field: "v=", Reason: fmt.Sprintf("must be 0, got %d", sd.Version)}
	}

	if err := validateConnectionAddress(sd.Origin.NetworkType, sd.Origin.AddressType, sd.Origin.UnicastAddress); err != nil {
		return &Error{Field: "o=", Reason: err.Error()}
	}

	if sd.ConnectionInformation != nil {
		if err := validateConnection(sd.ConnectionInformation); err != nil {
			return &Error{Field: "c=", Reason: err.Error()}
		}
	}

	if strings.TrimSpace(string(sd.SessionName)) == "" {
		return &Error{Field: "s=", Reason: "session name must be non-empty"}
	}

	if len(sd.TimeDescriptions) == 0 {
		return &Error{Field: "t=", Reason: "at least one time description is required"}
	}

	for i, m := range sd.MediaDescriptions {
		if len(m.MediaName.Formats) == 0 {
			return &Error{Field: fmt.Sprintf("m=[%d]", i), Reason: "must list at least one format"}
		}
		conn := m.ConnectionInformation
		if conn == nil {
			conn = sd.ConnectionInformation
		}
		if conn == nil {
			return &Error{Field: fmt.Sprintf("m=[%d]", i), Reason: "needs session- or media-level connection information"}
		}
		if m.ConnectionInformation != nil {
			if err := validateConnection(m.ConnectionInformation); err != nil {
				return &Error{Field: fmt.Sprintf("m=[%d] c=", i), Reason: err.Error()}
			}
		}
	}

	return nil
}

func validateConnection(c *sdp.ConnectionInformation) error {
	addr := ""
	if c.Address != nil {
		addr = c.Address.Address
	}
	return validateConnectionAddress(c.NetworkType, c.AddressType, addr)
}

func validateConnectionAddress(netType, addrType, address string) error {
	if netType != "IN" {
		return fmt.Errorf("net_type must be IN, got %q", netType)
	}
	if addrType != "IP4" && addrType != "IP6" {
		return fmt.Errorf("addr_type must be IP4 or IP6, got %q", addrType)
	}

	host := address
	if idx := strings.Index(host, "/"); idx != -1 {
		// IPv4 multicast may carry /ttl or /ttl/count.
		rest := host[idx+1:]
		host = host[:idx]
		parts := strings.Split(rest, "/")
		if len(parts) > 2 {
			return fmt.Errorf("malformed multicast address %q", address)
		}
		for _, p := range parts {
			if _, err := strconv.Atoi(p); err != nil {
				return fmt.Errorf("malformed multicast ttl/count in %q", address)
			}
		}
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")

	if ip := net.ParseIP(host); ip != nil {
		if addrType == "IP4" && ip.To4() == nil {
			return fmt.Errorf("address %q is not IPv4 but addr_type is IP4", address)
		}
		if addrType == "IP6" && ip.To4() != nil {
			return fmt.Errorf("address %q is not IPv6 but addr_type is IP6", address)
		}
		return nil
	}

	if !isValidHostname(host) {
		return fmt.Errorf("address %q is not a valid IP or hostname", address)
	}
	return nil
}

func isValidHostname(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	labels := strings.Split(host, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		for i, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '-' && i != 0 && i != len(label)-1:
			default:
				return false
			}
		}
	}
	return true
}
