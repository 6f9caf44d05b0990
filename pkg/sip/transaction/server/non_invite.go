package server

import (
	"fmt"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// NonInviteTransaction is the non-INVITE server transaction (NIST), RFC
// 3261 §17.2.2 / Figure 8: Trying -> Proceeding -> Completed -> Terminated.
// The same machine, under transaction.UpdateServer, implements the RFC
// 3311 UPDATE server transaction.
type NonInviteTransaction struct {
	*BaseTransaction

	finalResponse types.Message
}

// NewNonInviteTransaction creates a NIST in Trying. kind must be
// NonInviteServer or UpdateServer.
func NewNonInviteTransaction(
	id string,
	key transaction.TransactionKey,
	kind transaction.Kind,
	request types.Message,
	tr transaction.Transport,
	timers transaction.TransactionTimers,
	sink transaction.EventSink,
) *NonInviteTransaction {
	return &NonInviteTransaction{
		BaseTransaction: NewBaseTransaction(id, key, kind, request, tr, timers, sink),
	}
}

// SendResponse sends resp and advances the NIST state machine accordingly.
func (t *NonInviteTransaction) SendResponse(resp types.Message) error {
	if err := t.BaseTransaction.SendResponse(resp); err != nil {
		return err
	}

	statusCode := resp.StatusCode()
	state := t.State()

	switch state {
	case transaction.Trying:
		return t.handleResponseInTrying(resp, statusCode)
	case transaction.Proceeding:
		return t.handleResponseInProceeding(resp, statusCode)
	case transaction.Completed:
		return t.handleResponseInCompleted(resp, statusCode)
	case transaction.Terminated:
		return fmt.Errorf("cannot send response in Terminated state")
	default:
		return fmt.Errorf("unexpected state %s", state)
	}
}

func (t *NonInviteTransaction) handleResponseInTrying(resp types.Message, statusCode int) error {
	if statusCode >= 100 && statusCode <= 199 {
		t.changeState(transaction.Proceeding)
		return nil
	}

	if statusCode >= 200 && statusCode <= 699 {
		t.changeState(transaction.Completed)
		t.finalResponse = resp
		t.startCompletedTimers()
		return nil
	}

	return fmt.Errorf("invalid status code: %d", statusCode)
}

func (t *NonInviteTransaction) handleResponseInProceeding(resp types.Message, statusCode int) error {
	if statusCode >= 100 && statusCode <= 199 {
		return nil
	}

	if statusCode >= 200 && statusCode <= 699 {
		t.changeState(transaction.Completed)
		t.finalResponse = resp
		t.startCompletedTimers()
		return nil
	}

	return fmt.Errorf("invalid status code: %d", statusCode)
}

func (t *NonInviteTransaction) handleResponseInCompleted(resp types.Message, statusCode int) error {
	if t.finalResponse != nil && resp.StatusCode() == t.finalResponse.StatusCode() {
		return nil
	}
	return fmt.Errorf("cannot send different response in Completed state")
}

func (t *NonInviteTransaction) startCompletedTimers() {
	if !t.reliable && t.timers.TimerJ > 0 {
		t.startTimer(transaction.TimerJ, t.handleTimerJ)
	} else {
		t.Terminate()
	}
}

func (t *NonInviteTransaction) handleTimerJ() {
	if t.State() == transaction.Completed {
		t.Terminate()
	}
}

// HandleRequest absorbs a retransmitted request of the same method,
// replaying the last response if one was already sent.
func (t *NonInviteTransaction) HandleRequest(req types.Message) error {
	if req.Method() != t.request.Method() {
		return fmt.Errorf("method mismatch: expected %s, got %s", t.request.Method(), req.Method())
	}
	return t.BaseTransaction.HandleRequest(req)
}
