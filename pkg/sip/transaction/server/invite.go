package server

import (
	"fmt"
	"time"

	"github.com/arzzra/voipcore/pkg/sip/core/builder"
	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// InviteTransaction is the INVITE server transaction (IST), RFC 3261
// §17.2.1 / Figure 7: Proceeding -> Completed -> Confirmed -> Terminated,
// with a 2xx response terminating the transaction immediately.
type InviteTransaction struct {
	*BaseTransaction

	retransmitCount   int
	currentRetransmit time.Duration
	finalResponse     types.Message

	autoTryingTimer *time.Timer
}

// NewInviteTransaction creates an IST in Proceeding and, if
// timers.AutoTryingDelay is non-zero, arms a timer that sends an
// automatic 100 Trying unless the TU answers first.
func NewInviteTransaction(
	id string,
	key transaction.TransactionKey,
	request types.Message,
	tr transaction.Transport,
	timers transaction.TransactionTimers,
	sink transaction.EventSink,
) *InviteTransaction {
	ist := &InviteTransaction{
		BaseTransaction:   NewBaseTransaction(id, key, transaction.InviteServer, request, tr, timers, sink),
		currentRetransmit: timers.TimerG,
	}
	ist.changeState(transaction.Proceeding)

	if timers.AutoTryingDelay > 0 {
		ist.autoTryingTimer = time.AfterFunc(timers.AutoTryingDelay, ist.sendAutoTrying)
	}

	return ist
}

func (t *InviteTransaction) sendAutoTrying() {
	if t.State() != transaction.Proceeding || len(t.responses) > 0 {
		return
	}

	respBuilder := builder.CreateResponse(t.request, 100, "Trying")
	resp, err := respBuilder.Build()
	if err != nil {
		return
	}
	_ = t.SendResponse(resp)
}

func (t *InviteTransaction) cancelAutoTrying() {
	if t.autoTryingTimer != nil {
		t.autoTryingTimer.Stop()
	}
}

// SendResponse sends resp and advances the IST state machine accordingly.
func (t *InviteTransaction) SendResponse(resp types.Message) error {
	t.cancelAutoTrying()

	if err := t.BaseTransaction.SendResponse(resp); err != nil {
		return err
	}

	statusCode := resp.StatusCode()
	state := t.State()

	switch state {
	case transaction.Proceeding:
		return t.handleResponseInProceeding(resp, statusCode)
	case transaction.Completed:
		return t.handleResponseInCompleted(resp, statusCode)
	case transaction.Confirmed:
		return fmt.Errorf("cannot send response in Confirmed state")
	case transaction.Terminated:
		return fmt.Errorf("cannot send response in Terminated state")
	default:
		return fmt.Errorf("unexpected state %s", state)
	}
}

func (t *InviteTransaction) handleResponseInProceeding(resp types.Message, statusCode int) error {
	switch {
	case statusCode >= 100 && statusCode <= 199:
		return nil

	case statusCode >= 200 && statusCode <= 299:
		t.Terminate()
		return nil

	case statusCode >= 300 && statusCode <= 699:
		t.changeState(transaction.Completed)
		t.finalResponse = resp
		t.startCompletedTimers()
		return nil

	default:
		return fmt.Errorf("invalid status code: %d", statusCode)
	}
}

func (t *InviteTransaction) handleResponseInCompleted(resp types.Message, statusCode int) error {
	if t.finalResponse != nil && resp.StatusCode() == t.finalResponse.StatusCode() {
		return nil
	}
	return fmt.Errorf("cannot send different response in Completed state")
}

func (t *InviteTransaction) startCompletedTimers() {
	if !t.reliable && t.timers.TimerG > 0 {
		t.startTimer(transaction.TimerG, t.handleTimerG)
	}
	t.startTimer(transaction.TimerH, t.handleTimerH)
}

func (t *InviteTransaction) handleTimerG() {
	if t.State() != transaction.Completed {
		return
	}

	if t.finalResponse != nil {
		if err := t.BaseTransaction.SendResponse(t.finalResponse); err != nil {
			t.emit(transaction.EventTransportError, nil, t.State(), t.State(), "Timer G", err)
			return
		}

		t.retransmitCount++
		t.currentRetransmit = transaction.NextRetransmitInterval(t.currentRetransmit, t.timers.T2)
		t.timerManager.Reset(transaction.TimerG, t.currentRetransmit)
	}
}

func (t *InviteTransaction) handleTimerH() {
	if t.State() == transaction.Completed {
		t.emit(transaction.EventTimerTriggered, nil, t.State(), transaction.Terminated, "Timer H", nil)
		t.Terminate()
	}
}

// HandleACK processes an ACK for this INVITE's non-2xx final response,
// moving Completed -> Confirmed. A second ACK is absorbed silently.
func (t *InviteTransaction) HandleACK(ack types.Message) error {
	if ack.Method() != "ACK" {
		return fmt.Errorf("not an ACK request")
	}

	switch t.State() {
	case transaction.Completed:
		t.changeState(transaction.Confirmed)
		t.stopTimer(transaction.TimerG)
		t.stopTimer(transaction.TimerH)
		t.startConfirmedTimers()
		return nil

	case transaction.Confirmed:
		return nil

	default:
		return fmt.Errorf("unexpected ACK in state %s", t.State())
	}
}

func (t *InviteTransaction) startConfirmedTimers() {
	if !t.reliable && t.timers.TimerI > 0 {
		t.startTimer(transaction.TimerI, t.handleTimerI)
	} else {
		t.Terminate()
	}
}

func (t *InviteTransaction) handleTimerI() {
	if t.State() == transaction.Confirmed {
		t.Terminate()
	}
}

// HandleRequest absorbs a retransmitted INVITE (replaying the last
// response) or a stray ACK/CANCEL routed here by the manager.
func (t *InviteTransaction) HandleRequest(req types.Message) error {
	if req.Method() == "ACK" {
		return t.HandleACK(req)
	}
	if req.Method() != "INVITE" {
		return fmt.Errorf("expected INVITE, got %s", req.Method())
	}
	return t.BaseTransaction.HandleRequest(req)
}
