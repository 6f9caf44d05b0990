package dialog

import (
	"fmt"
	"sync"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// TargetManager manages the target URI and route set of a dialog.
//
// RFC 3261 Section 12.2.1.2:
// - the target URI is updated from the Contact header in certain responses
// - the route set is built from Record-Route headers
// - the route set order depends on the UAC/UAS role
type TargetManager struct {
	mu        sync.RWMutex
	targetURI types.URI   // current target URI (from Contact)
	routeSet  []types.URI // route set (from Record-Route)
	isUAC     bool        // role in the dialog
}

// NewTargetManager creates a new target manager.
func NewTargetManager(initialTarget types.URI, isUAC bool) *TargetManager {
	return &TargetManager{
		targetURI: initialTarget,
		routeSet:  make([]types.URI, 0),
		isUAC:     isUAC,
	}
}

// GetTargetURI returns the current target URI.
func (tm *TargetManager) GetTargetURI() types.URI {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.targetURI
}

// GetRouteSet returns a copy of the route set.
func (tm *TargetManager) GetRouteSet() []types.URI {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	result := make([]types.URI, len(tm.routeSet))
	copy(result, tm.routeSet)
	return result
}

// UpdateFromResponse updates the target from a response.
//
// RFC 3261 Section 12.2.1.2:
// - target is updated from Contact on 2xx responses to INVITE/UPDATE
// - target is updated from Contact on 1xx responses (other than 100)
// - target is updated from Contact on 3xx responses
func (tm *TargetManager) UpdateFromResponse(resp types.Message, method string) error {
	if !resp.IsResponse() {
		return fmt.Errorf("not a response message")
	}

	statusCode := resp.StatusCode()

	// Determine whether the target should be updated.
	shouldUpdate := false

	switch {
	case statusCode >= 200 && statusCode < 300:
		// 2xx to INVITE or UPDATE.
		if method == "INVITE" || method == "UPDATE" {
			shouldUpdate = true
		}
	case statusCode > 100 && statusCode < 200:
		// 1xx other than 100 Trying.
		shouldUpdate = true
	case statusCode >= 300 && statusCode < 400:
		// 3xx redirects.
		shouldUpdate = true
	}

	if shouldUpdate {
		contact := resp.GetHeader("Contact")
		if contact != "" {
			uri, err := parseContactURI(contact)
			if err != nil {
				return fmt.Errorf("failed to parse Contact: %w", err)
			}

			tm.mu.Lock()
			tm.targetURI = uri
			tm.mu.Unlock()
		}
	}

	// Update the route set from Record-Route (INVITE only).
	if method == "INVITE" && statusCode >= 200 && statusCode < 300 {
		tm.updateRouteSet(resp)
	}

	return nil
}

// UpdateFromRequest updates the target from a request.
//
// RFC 3261 Section 12.2.2:
// - target is updated from Contact on re-INVITE, UPDATE
func (tm *TargetManager) UpdateFromRequest(req types.Message) error {
	if !req.IsRequest() {
		return fmt.Errorf("not a request message")
	}

	method := req.Method()

	// Only update for certain methods.
	if method == "INVITE" || method == "UPDATE" {
		contact := req.GetHeader("Contact")
		if contact != "" {
			uri, err := parseContactURI(contact)
			if err != nil {
				return fmt.Errorf("failed to parse Contact: %w", err)
			}

			tm.mu.Lock()
			tm.targetURI = uri
			tm.mu.Unlock()
		}
	}

	return nil
}

// updateRouteSet updates the route set from Record-Route headers.
func (tm *TargetManager) updateRouteSet(msg types.Message) {
	recordRoutes := msg.GetHeaders("Record-Route")
	if len(recordRoutes) == 0 {
		return
	}

	routes := make([]types.URI, 0, len(recordRoutes))

	// Parse every Record-Route header.
	for _, rr := range recordRoutes {
		// A Record-Route header can carry multiple comma-separated URIs.
		uris := parseRecordRouteURIs(rr)
		routes = append(routes, uris...)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	// The order depends on the role.
	if tm.isUAC {
		// UAC uses the order as received.
		tm.routeSet = routes
	} else {
		// UAS reverses the order.
		tm.routeSet = reverseURIs(routes)
	}
}

// BuildRouteHeaders builds Route headers for an outgoing request.
func (tm *TargetManager) BuildRouteHeaders() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if len(tm.routeSet) == 0 {
		return nil
	}

	routes := make([]string, len(tm.routeSet))
	for i, uri := range tm.routeSet {
		routes[i] = formatRouteHeader(uri)
	}

	return routes
}

// parseContactURI extracts the URI from a Contact header.
//
// Format: "Display Name" <sip:user@host>;parameters
func parseContactURI(contact string) (types.URI, error) {
	// Look for angle brackets.
	start := -1
	end := -1

	for i, ch := range contact {
		if ch == '<' {
			start = i + 1
		} else if ch == '>' && start != -1 {
			end = i
			break
		}
	}

	var uriStr string
	if start != -1 && end != -1 {
		// URI inside angle brackets.
		uriStr = contact[start:end]
	} else {
		// No brackets, trim parameters after ';'.
		for i, ch := range contact {
			if ch == ';' || ch == ' ' {
				uriStr = contact[:i]
				break
			}
		}
		if uriStr == "" {
			uriStr = contact
		}
	}

	// Parse the URI.
	uri, err := types.ParseURI(uriStr)
	if err != nil {
		return nil, err
	}

	return uri, nil
}

// parseRecordRouteURIs extracts the URIs from a Record-Route header.
//
// A Record-Route header can carry multiple comma-separated URIs.
func parseRecordRouteURIs(recordRoute string) []types.URI {
	uris := make([]types.URI, 0)

	// Split on commas that lie outside angle brackets.
	parts := splitByComma(recordRoute)

	for _, part := range parts {
		uri, err := parseContactURI(part)
		if err == nil {
			uris = append(uris, uri)
		}
	}

	return uris
}

// splitByComma splits a string on commas, respecting angle brackets.
func splitByComma(s string) []string {
	var parts []string
	var current []byte
	inBrackets := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if ch == '<' {
			inBrackets = true
		} else if ch == '>' {
			inBrackets = false
		} else if ch == ',' && !inBrackets {
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = nil
			}
			continue
		}

		current = append(current, ch)
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}

	return parts
}

// reverseURIs reverses the order of a URI slice.
func reverseURIs(uris []types.URI) []types.URI {
	result := make([]types.URI, len(uris))
	for i, uri := range uris {
		result[len(uris)-1-i] = uri
	}
	return result
}

// HasRouteSet reports whether a route set is present.
func (tm *TargetManager) HasRouteSet() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.routeSet) > 0
}

// ClearRouteSet empties the route set.
func (tm *TargetManager) ClearRouteSet() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.routeSet = tm.routeSet[:0]
}
