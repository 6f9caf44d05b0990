package dialog

import (
	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// Type aliases for easier access
type (
	URI      = types.URI
	Request  = types.Request
	Response = types.Response
	Message  = types.Message
)

// DialogState represents the dialog's state.
type DialogState int

const (
	// DialogStateInit is the initial state.
	DialogStateInit DialogState = iota
	// DialogStateTrying means an INVITE was sent or received and no final response has been exchanged yet.
	DialogStateTrying
	// DialogStateRinging means a 180 Ringing was received.
	DialogStateRinging
	// DialogStateEstablished means the dialog is up (200 OK + ACK).
	DialogStateEstablished
	// DialogStateTerminating means a BYE was sent or received.
	DialogStateTerminating
	// DialogStateTerminated means the dialog has ended.
	DialogStateTerminated
)

// String returns the state's string representation.
func (s DialogState) String() string {
	switch s {
	case DialogStateInit:
		return "Init"
	case DialogStateTrying:
		return "Trying"
	case DialogStateRinging:
		return "Ringing"
	case DialogStateEstablished:
		return "Established"
	case DialogStateTerminating:
		return "Terminating"
	case DialogStateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// RequestHandler handles an incoming out-of-dialog request.
type RequestHandler func(req *Request) *Response

// ReferSubscription tracks the implicit NOTIFY subscription created by REFER.
type ReferSubscription struct {
	// ID uniquely identifies the subscription.
	ID string
	// Event is the Event header from SUBSCRIBE/NOTIFY.
	Event string
	// State is the subscription's current state.
	State string
	// Progress is the transfer's progress (from sipfrag).
	Progress int
	// Done signals when the subscription terminates.
	Done chan struct{}
	// Error holds the last error, if any.
	Error error
}

// SimpleBody is a minimal Body implementation.
type SimpleBody struct {
	contentType string
	data        []byte
}

// NewSimpleBody creates a new message body.
func NewSimpleBody(contentType string, data []byte) Body {
	return &SimpleBody{
		contentType: contentType,
		data:        append([]byte(nil), data...), // copy the data
	}
}

// ContentType returns the MIME type.
func (b *SimpleBody) ContentType() string {
	return b.contentType
}

// Data returns the body data.
func (b *SimpleBody) Data() []byte {
	return append([]byte(nil), b.data...) // return a copy
}
