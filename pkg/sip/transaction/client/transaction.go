// Package client implements the client-side (UAC) transaction state
// machines: INVITE, non-INVITE, and UPDATE (which follows the non-INVITE
// diagram per RFC 3311).
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// BaseTransaction holds the state shared by every client transaction
// kind: id/key, current State, the request and responses seen so far,
// timers, the transport, and the EventSink the TU (dialog layer) is
// notified through.
type BaseTransaction struct {
	id   string
	key  transaction.TransactionKey
	kind transaction.Kind

	mu    sync.RWMutex
	state transaction.State

	request      types.Message
	lastResponse types.Message
	responses    []types.Message

	timerManager *transaction.TimerManager
	timers       transaction.TransactionTimers

	transport transaction.Transport
	reliable  bool

	sink transaction.EventSink

	ctx    context.Context
	cancel context.CancelFunc

	cancelSent bool
}

// NewBaseTransaction builds the shared client transaction scaffolding.
// Timers are adjusted for a reliable transport per RFC 3261 §17.1.1.2.
func NewBaseTransaction(
	id string,
	key transaction.TransactionKey,
	kind transaction.Kind,
	request types.Message,
	tr transaction.Transport,
	timers transaction.TransactionTimers,
	sink transaction.EventSink,
) *BaseTransaction {
	ctx, cancel := context.WithCancel(context.Background())

	target := targetAddr(request)
	reliable := tr.IsReliable(target)
	if reliable {
		timers = timers.ForReliableTransport()
	}

	initial := transaction.Calling
	if kind == transaction.NonInviteClient || kind == transaction.UpdateClient {
		initial = transaction.Trying
	}

	return &BaseTransaction{
		id:           id,
		key:          key,
		kind:         kind,
		state:        initial,
		request:      request,
		responses:    make([]types.Message, 0),
		timerManager: transaction.NewTimerManager(),
		timers:       timers,
		transport:    tr,
		reliable:     reliable,
		sink:         sink,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func targetAddr(req types.Message) string {
	uri := req.RequestURI()
	if uri == nil {
		return ""
	}
	if uri.Port() == 0 {
		return uri.Host() + ":5060"
	}
	return fmt.Sprintf("%s:%d", uri.Host(), uri.Port())
}

func (t *BaseTransaction) ID() string                     { return t.id }
func (t *BaseTransaction) Key() transaction.TransactionKey { return t.key }
func (t *BaseTransaction) Kind() transaction.Kind         { return t.kind }
func (t *BaseTransaction) IsClient() bool                 { return true }
func (t *BaseTransaction) IsInvite() bool                 { return t.kind.IsInvite() }

func (t *BaseTransaction) State() transaction.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *BaseTransaction) IsTerminated() bool {
	return t.State() == transaction.Terminated
}

func (t *BaseTransaction) Request() types.Message { return t.request }

func (t *BaseTransaction) LastResponse() types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastResponse
}

// SendResponse is invalid on a client transaction.
func (t *BaseTransaction) SendResponse(resp types.Message) error {
	return fmt.Errorf("client transaction cannot send responses")
}

// SendRequest (re)sends req to its Request-URI's host/port.
func (t *BaseTransaction) SendRequest(req types.Message) error {
	if req.RequestURI() == nil {
		return fmt.Errorf("request URI is nil")
	}
	return t.transport.Send(req, targetAddr(req))
}

// HandleRequest is invalid on a client transaction.
func (t *BaseTransaction) HandleRequest(req types.Message) error {
	return fmt.Errorf("client transaction cannot handle requests")
}

// Context returns the transaction's lifetime context, cancelled on Terminate.
func (t *BaseTransaction) Context() context.Context { return t.ctx }

// recordResponse validates CSeq, appends resp to the response history and
// emits the matching provisional/success/failure TU event.
func (t *BaseTransaction) recordResponse(resp types.Message) error {
	if !resp.IsResponse() {
		return fmt.Errorf("not a response")
	}

	reqCSeq := t.request.GetHeader("CSeq")
	respCSeq := resp.GetHeader("CSeq")
	if reqCSeq != respCSeq {
		return fmt.Errorf("CSeq mismatch: expected %s, got %s", reqCSeq, respCSeq)
	}

	t.mu.Lock()
	t.lastResponse = resp
	t.responses = append(t.responses, resp)
	t.mu.Unlock()

	kind := transaction.EventFailureResponse
	sc := resp.StatusCode()
	switch {
	case sc >= 100 && sc < 200:
		kind = transaction.EventProvisionalResponse
	case sc >= 200 && sc < 300:
		kind = transaction.EventSuccessResponse
	}
	t.emit(kind, resp, transaction.Initial, transaction.Initial, "", nil)

	return nil
}

// Terminate stops all timers, cancels the context, and emits
// EventTransactionTerminated (idempotent).
func (t *BaseTransaction) Terminate() {
	t.changeState(transaction.Terminated)
	t.timerManager.StopAll()
	t.cancel()
}

func (t *BaseTransaction) changeState(newState transaction.State) {
	t.mu.Lock()
	oldState := t.state
	if oldState == newState {
		t.mu.Unlock()
		return
	}
	t.state = newState
	t.mu.Unlock()

	t.emit(transaction.EventStateChanged, nil, oldState, newState, "", nil)
	if newState == transaction.Terminated {
		t.emit(transaction.EventTransactionTerminated, nil, oldState, newState, "", nil)
	}
}

func (t *BaseTransaction) emit(kind transaction.EventKind, msg types.Message, prev, next transaction.State, timer string, err error) {
	if t.sink == nil {
		return
	}
	t.sink.HandleTransactionEvent(transaction.Event{
		Kind:      kind,
		Key:       t.key,
		Message:   msg,
		PrevState: prev,
		NewState:  next,
		TimerName: timer,
		Err:       err,
	})
}

func (t *BaseTransaction) startTimer(id transaction.TimerID, callback func()) {
	duration := t.timers.GetTimerDuration(id)
	if duration > 0 {
		t.timerManager.Start(id, duration, callback)
	}
}

func (t *BaseTransaction) stopTimer(id transaction.TimerID) {
	t.timerManager.Stop(id)
}

func (t *BaseTransaction) isTimerActive(id transaction.TimerID) bool {
	return t.timerManager.IsActive(id)
}

func (t *BaseTransaction) fireTimeout() {
	t.emit(transaction.EventTransactionTimeout, nil, t.State(), transaction.Terminated, "", nil)
	t.Terminate()
}
