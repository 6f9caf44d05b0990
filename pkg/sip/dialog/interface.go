package dialog

import (
	"context"
	"fmt"
)

/* -------------------------------------------------
   Stack: the UAC+UAS entry point
--------------------------------------------------*/

// IStack is the SIP stack interface responsible for dialog lifecycle.
//
// The stack owns:
//   - the transport layer (UDP/TCP/TLS)
//   - dialog creation and lookup
//   - routing of incoming/outgoing SIP messages to the right dialog
//   - thread-safe access across concurrently active dialogs
//   - graceful shutdown of every active dialog
//
// It supports both UAC (outgoing) and UAS (incoming) roles.
type IStack interface {
	// Start starts the listeners and the transaction event loop and returns
	// without waiting for ctx to be done.
	Start(ctx context.Context) error

	// Shutdown stops accepting traffic and gracefully terminates every dialog.
	Shutdown(ctx context.Context) error

	// NewInvite originates an outgoing INVITE and creates its Dialog.
	NewInvite(ctx context.Context, target URI, opts InviteOpts) (IDialog, error)

	// DialogByKey looks up an existing dialog by Call-ID + tags.
	DialogByKey(key DialogKey) (IDialog, bool)

	// OnIncomingDialog fires on an incoming INVITE, after the 100 Trying is sent.
	OnIncomingDialog(func(IDialog))

	// OnRequest registers a handler for out-of-dialog requests (OPTIONS, MESSAGE, ...).
	OnRequest(method string, h RequestHandler)
}

// InviteOpts customizes an outgoing INVITE built by NewInvite (e.g. to set
// the SDP body).
type InviteOpts func(req *Request)

/* -------------------------------------------------
   Dialog: one call leg (RFC 3261 §12)
--------------------------------------------------*/

// ResponseOpt customizes the 200 OK built by Accept (extra headers, body).
type ResponseOpt func(resp *Response)

// ReferOpts configures a REFER request (RFC 3515 call transfer). Supports
// both blind transfer and, via the Replaces header, attended transfer.
type ReferOpts struct {
	// ReferSub sets the Refer-Sub header controlling NOTIFY subscription (RFC 4488).
	ReferSub *string
	// NoReferSub disables the implicit NOTIFY subscription.
	NoReferSub bool
	// Headers are extra headers to attach to the REFER request.
	Headers map[string]string
}

// DialogKey is the RFC 3261 dialog identity: Call-ID plus the local and
// remote tags (from-tag/to-tag, oriented by role).
type DialogKey struct {
	CallID    string
	LocalTag  string
	RemoteTag string
}

// String returns a canonical "callid:localtag:remotetag" representation.
func (dk DialogKey) String() string {
	return fmt.Sprintf("%s:%s:%s", dk.CallID, dk.LocalTag, dk.RemoteTag)
}

// Body is a SIP message body: SDP, sipfrag, or any other content type.
type Body interface {
	ContentType() string
	Data() []byte
}

// IDialog is one SIP call leg: its state machine, call-control operations
// (Accept/Reject/Bye), transfer support, and event callbacks.
type IDialog interface {
	// Key returns the dialog's identity.
	Key() DialogKey

	// State returns the current dialog state.
	State() DialogState

	// LocalTag returns this side's tag.
	LocalTag() string

	// RemoteTag returns the peer's tag.
	RemoteTag() string

	// Accept answers a pending INVITE with 200 OK.
	Accept(ctx context.Context, opts ...ResponseOpt) error

	// Reject answers a pending INVITE with a failure response.
	Reject(ctx context.Context, code int, reason string) error

	// Bye terminates the dialog.
	Bye(ctx context.Context, reason string) error

	// SendRefer starts a call transfer.
	SendRefer(ctx context.Context, targetURI string, opts *ReferOpts) error

	// WaitRefer blocks for the REFER's outcome.
	WaitRefer(ctx context.Context) (*ReferSubscription, error)

	// OnStateChange registers a state-change callback.
	OnStateChange(fn func(DialogState))

	// OnBody registers a callback for bodies carried by in-dialog messages.
	OnBody(fn func(Body))

	// Close tears down the dialog locally without sending BYE.
	Close() error
}
