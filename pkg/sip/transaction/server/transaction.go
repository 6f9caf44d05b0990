// Package server implements the server-side (UAS) transaction state
// machines: INVITE, non-INVITE, and UPDATE (which follows the non-INVITE
// diagram per RFC 3311).
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// BaseTransaction holds the state shared by every server transaction kind.
type BaseTransaction struct {
	id   string
	key  transaction.TransactionKey
	kind transaction.Kind

	mu    sync.RWMutex
	state transaction.State

	request   types.Message
	responses []types.Message

	timerManager *transaction.TimerManager
	timers       transaction.TransactionTimers

	transport transaction.Transport
	reliable  bool

	sink transaction.EventSink

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBaseTransaction builds the shared server transaction scaffolding.
// INVITE transactions start in Trying only briefly (immediately entering
// Proceeding once the TU or the auto-100 policy sends a 1xx); non-INVITE
// and UPDATE transactions start and remain in Trying until a response.
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

	target := sourceAddr(request)
	reliable := tr.IsReliable(target)
	if reliable {
		timers = timers.ForReliableTransport()
	}

	return &BaseTransaction{
		id:           id,
		key:          key,
		kind:         kind,
		state:        transaction.Trying,
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

// sourceAddr returns the address the request's top Via indicates as the
// place to route responses, per RFC 3261 §18.2.2 (received/rport aware).
func sourceAddr(req types.Message) string {
	viaHeader := req.GetHeader("Via")
	if viaHeader == "" {
		return ""
	}
	via, err := types.ParseVia(viaHeader)
	if err != nil {
		return ""
	}
	return via.GetAddress()
}

func (t *BaseTransaction) ID() string                      { return t.id }
func (t *BaseTransaction) Key() transaction.TransactionKey { return t.key }
func (t *BaseTransaction) Kind() transaction.Kind          { return t.kind }
func (t *BaseTransaction) IsClient() bool                  { return false }
func (t *BaseTransaction) IsInvite() bool                  { return t.kind.IsInvite() }

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
	if len(t.responses) > 0 {
		return t.responses[len(t.responses)-1]
	}
	return nil
}

// SendRequest is invalid on a server transaction.
func (t *BaseTransaction) SendRequest(req types.Message) error {
	return fmt.Errorf("server transaction cannot send requests")
}

// SendResponse sends resp to the request's Via-indicated source and
// remembers it so retransmitted requests get the same response replayed.
func (t *BaseTransaction) SendResponse(resp types.Message) error {
	if !resp.IsResponse() {
		return fmt.Errorf("not a response")
	}

	reqCSeq := t.request.GetHeader("CSeq")
	respCSeq := resp.GetHeader("CSeq")
	if reqCSeq != respCSeq {
		return fmt.Errorf("CSeq mismatch: request has %s, response has %s", reqCSeq, respCSeq)
	}

	t.mu.Lock()
	t.responses = append(t.responses, resp)
	t.mu.Unlock()

	target := sourceAddr(t.request)
	if target == "" {
		return fmt.Errorf("no Via header in request")
	}

	if err := t.transport.Send(resp, target); err != nil {
		return err
	}

	sc := resp.StatusCode()
	if sc >= 100 && sc < 200 {
		t.emit(transaction.EventProvisionalResponseSent, resp, transaction.Initial, transaction.Initial, "", nil)
	} else {
		t.emit(transaction.EventFinalResponseSent, resp, transaction.Initial, transaction.Initial, "", nil)
	}

	return nil
}

// HandleRequest replays the last response for a retransmitted request; a
// request seen before any response is sent is simply absorbed.
func (t *BaseTransaction) HandleRequest(req types.Message) error {
	lastResp := t.LastResponse()
	if lastResp != nil {
		return t.SendResponse(lastResp)
	}
	return nil
}

// HandleResponse is invalid on a server transaction.
func (t *BaseTransaction) HandleResponse(resp types.Message) error {
	return fmt.Errorf("server transaction cannot handle responses")
}

func (t *BaseTransaction) Context() context.Context { return t.ctx }

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
