// Package transaction implements the SIP transaction layer (RFC 3261 §17),
// including the RFC 3311 UPDATE transaction, sitting on top of a transport
// adapter and below the dialog layer (the TU).
package transaction

import (
	"context"
	"net"
	"time"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// Kind identifies which of the six per-method/per-role state machines a
// transaction record runs.
type Kind int

const (
	InviteClient Kind = iota
	NonInviteClient
	InviteServer
	NonInviteServer
	UpdateClient
	UpdateServer
)

func (k Kind) String() string {
	switch k {
	case InviteClient:
		return "InviteClient"
	case NonInviteClient:
		return "NonInviteClient"
	case InviteServer:
		return "InviteServer"
	case NonInviteServer:
		return "NonInviteServer"
	case UpdateClient:
		return "UpdateClient"
	case UpdateServer:
		return "UpdateServer"
	default:
		return "Unknown"
	}
}

// IsClient reports whether this kind runs the client-side (UAC) machine.
func (k Kind) IsClient() bool {
	return k == InviteClient || k == NonInviteClient || k == UpdateClient
}

// IsInvite reports whether this kind follows the INVITE state diagram
// rather than the non-INVITE one. UPDATE always follows non-INVITE.
func (k Kind) IsInvite() bool {
	return k == InviteClient || k == InviteServer
}

// State is the per-transaction state. Not every state applies to every
// Kind; see the state diagrams for each kind.
type State int

const (
	Initial State = iota
	Calling
	Trying
	Proceeding
	Completed
	Confirmed
	Terminated
	Failed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case Calling:
		return "Calling"
	case Trying:
		return "Trying"
	case Proceeding:
		return "Proceeding"
	case Completed:
		return "Completed"
	case Confirmed:
		return "Confirmed"
	case Terminated:
		return "Terminated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// TransactionKey is the immutable, hashable matching key: branch, the
// method of the transaction's originating request, and role (client vs
// server). ACK to a non-2xx shares its INVITE's key (method stays INVITE).
// CANCEL carries its own branch but keys off method CANCEL.
type TransactionKey struct {
	Branch string
	Method string
	Client bool
}

func (k TransactionKey) String() string {
	role := "s"
	if k.Client {
		role = "c"
	}
	return k.Branch + "|" + k.Method + "|" + role
}

// Transaction is the common surface both client and server transactions
// implement, regardless of Kind.
type Transaction interface {
	ID() string
	Key() TransactionKey
	Kind() Kind
	IsClient() bool
	IsInvite() bool

	State() State
	IsTerminated() bool

	Request() types.Message
	LastResponse() types.Message

	// SendResponse is used by server transactions; the TU hands the
	// transaction a response to send and retransmit as needed.
	SendResponse(resp types.Message) error
	// SendRequest is used by client transactions to (re)send the request.
	SendRequest(req types.Message) error

	HandleRequest(req types.Message) error
	HandleResponse(resp types.Message) error

	Terminate()
	Context() context.Context
}

// EventKind enumerates the events the transaction layer publishes to the TU.
type EventKind int

const (
	EventNewRequest EventKind = iota
	EventProvisionalResponse
	EventSuccessResponse
	EventFailureResponse
	EventProvisionalResponseSent
	EventFinalResponseSent
	EventStateChanged
	EventTimerTriggered
	EventTransactionTimeout
	EventTransportError
	EventTransactionTerminated
	EventStrayAck
	EventStrayCancel
	EventStrayResponse
)

func (e EventKind) String() string {
	switch e {
	case EventNewRequest:
		return "NewRequest"
	case EventProvisionalResponse:
		return "ProvisionalResponse"
	case EventSuccessResponse:
		return "SuccessResponse"
	case EventFailureResponse:
		return "FailureResponse"
	case EventProvisionalResponseSent:
		return "ProvisionalResponseSent"
	case EventFinalResponseSent:
		return "FinalResponseSent"
	case EventStateChanged:
		return "StateChanged"
	case EventTimerTriggered:
		return "TimerTriggered"
	case EventTransactionTimeout:
		return "TransactionTimeout"
	case EventTransportError:
		return "TransportError"
	case EventTransactionTerminated:
		return "TransactionTerminated"
	case EventStrayAck:
		return "StrayAck"
	case EventStrayCancel:
		return "StrayCancel"
	case EventStrayResponse:
		return "StrayResponse"
	default:
		return "Unknown"
	}
}

// Event is a single TU-facing notification emitted by the transaction layer.
type Event struct {
	Kind       EventKind
	Key        TransactionKey
	Message    types.Message
	PrevState  State
	NewState   State
	TimerName  string
	Err        error
	SourceAddr net.Addr
}

// EventSink receives transaction-layer events. The dialog layer implements
// this to act as the TU.
type EventSink interface {
	HandleTransactionEvent(ev Event)
}

// EventSinkFunc adapts a plain function to an EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) HandleTransactionEvent(ev Event) { f(ev) }

// TransactionTimers holds the RFC 3261 §17 timer values. TimerC (proxy
// INVITE timeout) is intentionally absent: this stack is UA-only, not a
// stateful proxy.
type TransactionTimers struct {
	T1 time.Duration
	T2 time.Duration
	T4 time.Duration

	TimerA time.Duration // INVITE client request retransmit, initial T1
	TimerB time.Duration // INVITE client timeout, 64*T1
	TimerD time.Duration // INVITE client wait in Completed, >=32s on unreliable transport
	TimerE time.Duration // non-INVITE client request retransmit, initial T1 capped at T2
	TimerF time.Duration // non-INVITE client timeout, 64*T1
	TimerG time.Duration // INVITE server response retransmit, T1 doubling capped at T2
	TimerH time.Duration // INVITE server wait for ACK, 64*T1
	TimerI time.Duration // INVITE server wait in Confirmed, T4 on unreliable transport
	TimerJ time.Duration // non-INVITE server wait in Completed, 64*T1 on unreliable transport
	TimerK time.Duration // non-INVITE client wait in Completed, T4 on unreliable transport

	// AutoTryingDelay is how long an INVITE server transaction waits
	// before sending an automatic 100 Trying if the TU hasn't sent its
	// own provisional response yet. Zero disables the automatic 100.
	AutoTryingDelay time.Duration
}

// DefaultTimers returns the RFC 3261 §17.1.1.2 defaults (T1=500ms, T2=4s,
// T4=5s) with every derived timer computed from them.
func DefaultTimers() TransactionTimers {
	t1 := 500 * time.Millisecond
	t2 := 4 * time.Second
	t4 := 5 * time.Second

	return TransactionTimers{
		T1: t1,
		T2: t2,
		T4: t4,

		TimerA: t1,
		TimerB: 64 * t1,
		TimerD: 32 * time.Second,
		TimerE: t1,
		TimerF: 64 * t1,
		TimerG: t1,
		TimerH: 64 * t1,
		TimerI: t4,
		TimerJ: 64 * t1,
		TimerK: t4,

		AutoTryingDelay: 200 * time.Millisecond,
	}
}

// ForReliableTransport zeroes the retransmit/wait timers that RFC 3261
// disables on a reliable transport (TCP/TLS): no retransmissions, and the
// Completed/Confirmed wait states collapse to immediate termination.
func (t TransactionTimers) ForReliableTransport() TransactionTimers {
	adjusted := t
	adjusted.TimerA = 0
	adjusted.TimerD = 0
	adjusted.TimerE = 0
	adjusted.TimerG = 0
	adjusted.TimerI = 0
	adjusted.TimerJ = 0
	adjusted.TimerK = 0
	return adjusted
}

// NextRetransmitInterval doubles current, capped at cap, per RFC 3261
// §17.1.1.2 / §17.1.2.2 retransmit backoff.
func NextRetransmitInterval(current, cap time.Duration) time.Duration {
	next := current * 2
	if next > cap {
		return cap
	}
	return next
}

// Stats is a snapshot of transaction layer counters.
type Stats struct {
	Created       uint64
	Terminated    uint64
	TimedOut      uint64
	Retransmits   uint64
	TransportErr  uint64
	StrayMessages uint64
}

// Transport is the transaction layer's view of the transport adapter.
type Transport interface {
	Send(msg types.Message, addr string) error
	IsReliable(addr string) bool
}
