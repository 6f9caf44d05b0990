package client

import (
	"fmt"
	"time"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// NonInviteTransaction is the non-INVITE client transaction (NICT), RFC
// 3261 §17.1.2 / Figure 6: Trying -> Proceeding -> Completed -> Terminated.
// The same machine, under transaction.UpdateClient, implements the RFC
// 3311 UPDATE client transaction.
type NonInviteTransaction struct {
	*BaseTransaction

	retransmitCount   int
	currentRetransmit time.Duration
}

// NewNonInviteTransaction creates a NICT and starts it. kind must be
// NonInviteClient or UpdateClient.
func NewNonInviteTransaction(
	id string,
	key transaction.TransactionKey,
	kind transaction.Kind,
	request types.Message,
	tr transaction.Transport,
	timers transaction.TransactionTimers,
	sink transaction.EventSink,
) *NonInviteTransaction {
	nict := &NonInviteTransaction{
		BaseTransaction:   NewBaseTransaction(id, key, kind, request, tr, timers, sink),
		currentRetransmit: timers.TimerE,
	}

	go nict.start()

	return nict
}

func (t *NonInviteTransaction) start() {
	if err := t.SendRequest(t.request); err != nil {
		t.emit(transaction.EventTransportError, nil, t.State(), t.State(), "", err)
		t.Terminate()
		return
	}
	t.startTryingTimers()
}

func (t *NonInviteTransaction) startTryingTimers() {
	if !t.reliable && t.timers.TimerE > 0 {
		t.startTimer(transaction.TimerE, t.handleTimerE)
	}
	t.startTimer(transaction.TimerF, t.handleTimerF)
}

func (t *NonInviteTransaction) handleTimerE() {
	state := t.State()
	if state != transaction.Trying && state != transaction.Proceeding {
		return
	}

	if err := t.SendRequest(t.request); err != nil {
		t.emit(transaction.EventTransportError, nil, state, state, "Timer E", err)
		t.Terminate()
		return
	}

	t.retransmitCount++
	if state == transaction.Trying {
		t.currentRetransmit = transaction.NextRetransmitInterval(t.currentRetransmit, t.timers.T2)
	} else {
		t.currentRetransmit = t.timers.T2
	}
	t.timerManager.Reset(transaction.TimerE, t.currentRetransmit)
}

func (t *NonInviteTransaction) handleTimerF() {
	state := t.State()
	if state == transaction.Trying || state == transaction.Proceeding {
		t.emit(transaction.EventTimerTriggered, nil, state, transaction.Terminated, "Timer F", nil)
		t.fireTimeout()
	}
}

// HandleResponse dispatches resp per the current state.
func (t *NonInviteTransaction) HandleResponse(resp types.Message) error {
	if err := t.recordResponse(resp); err != nil {
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
		return nil
	default:
		return fmt.Errorf("unexpected response in state %s", state)
	}
}

func (t *NonInviteTransaction) handleResponseInTrying(resp types.Message, statusCode int) error {
	if statusCode >= 100 && statusCode <= 199 {
		t.changeState(transaction.Proceeding)
		return nil
	}

	if statusCode >= 200 && statusCode <= 699 {
		t.changeState(transaction.Completed)
		t.stopTimer(transaction.TimerE)
		t.stopTimer(transaction.TimerF)
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
		t.stopTimer(transaction.TimerE)
		t.stopTimer(transaction.TimerF)
		t.startCompletedTimers()
		return nil
	}

	return fmt.Errorf("invalid status code: %d", statusCode)
}

func (t *NonInviteTransaction) startCompletedTimers() {
	if !t.reliable && t.timers.TimerK > 0 {
		t.startTimer(transaction.TimerK, t.handleTimerK)
	} else {
		t.Terminate()
	}
}

func (t *NonInviteTransaction) handleTimerK() {
	if t.State() == transaction.Completed {
		t.Terminate()
	}
}
