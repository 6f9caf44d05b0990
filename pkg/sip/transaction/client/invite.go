package client

import (
	"fmt"
	"time"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// InviteTransaction is the INVITE client transaction (ICT), RFC 3261
// §17.1.1 / Figure 5: Calling -> Proceeding -> Completed -> Terminated,
// with a 2xx response terminating the transaction immediately rather
// than passing through Completed (the TU's dialog layer takes over
// sending the ACK for a 2xx).
type InviteTransaction struct {
	*BaseTransaction

	retransmitCount   int
	currentRetransmit time.Duration

	finalResponse types.Message
}

// NewInviteTransaction creates an ICT and starts it: sends the INVITE and
// arms Timer A/B.
func NewInviteTransaction(
	id string,
	key transaction.TransactionKey,
	request types.Message,
	tr transaction.Transport,
	timers transaction.TransactionTimers,
	sink transaction.EventSink,
) *InviteTransaction {
	ict := &InviteTransaction{
		BaseTransaction:   NewBaseTransaction(id, key, transaction.InviteClient, request, tr, timers, sink),
		currentRetransmit: timers.TimerA,
	}

	go ict.start()

	return ict
}

func (t *InviteTransaction) start() {
	if err := t.SendRequest(t.request); err != nil {
		t.emit(transaction.EventTransportError, nil, t.State(), t.State(), "", err)
		t.Terminate()
		return
	}
	t.startCallingTimers()
}

func (t *InviteTransaction) startCallingTimers() {
	if !t.reliable && t.timers.TimerA > 0 {
		t.startTimer(transaction.TimerA, t.handleTimerA)
	}
	t.startTimer(transaction.TimerB, t.handleTimerB)
}

func (t *InviteTransaction) handleTimerA() {
	if t.State() != transaction.Calling {
		return
	}

	if err := t.SendRequest(t.request); err != nil {
		t.emit(transaction.EventTransportError, nil, t.State(), t.State(), "Timer A", err)
		t.Terminate()
		return
	}

	t.retransmitCount++
	t.currentRetransmit = transaction.NextRetransmitInterval(t.currentRetransmit, t.timers.T2)
	t.timerManager.Reset(transaction.TimerA, t.currentRetransmit)
}

func (t *InviteTransaction) handleTimerB() {
	state := t.State()
	if state == transaction.Calling || state == transaction.Proceeding {
		t.emit(transaction.EventTimerTriggered, nil, state, transaction.Terminated, "Timer B", nil)
		t.fireTimeout()
	}
}

// HandleResponse dispatches resp per the current state.
func (t *InviteTransaction) HandleResponse(resp types.Message) error {
	if err := t.recordResponse(resp); err != nil {
		return err
	}

	statusCode := resp.StatusCode()
	state := t.State()

	switch state {
	case transaction.Calling:
		return t.handleResponseInCalling(resp, statusCode)
	case transaction.Proceeding:
		return t.handleResponseInProceeding(resp, statusCode)
	case transaction.Completed:
		return t.handleResponseInCompleted(resp, statusCode)
	default:
		return fmt.Errorf("unexpected response in state %s", state)
	}
}

func (t *InviteTransaction) handleResponseInCalling(resp types.Message, statusCode int) error {
	switch {
	case statusCode >= 100 && statusCode <= 199:
		t.changeState(transaction.Proceeding)
		t.stopTimer(transaction.TimerA)
		return nil

	case statusCode >= 200 && statusCode <= 299:
		t.Terminate()
		return nil

	case statusCode >= 300 && statusCode <= 699:
		t.changeState(transaction.Completed)
		t.finalResponse = resp
		t.stopTimer(transaction.TimerA)
		t.stopTimer(transaction.TimerB)

		if err := t.sendACK(resp); err != nil {
			return fmt.Errorf("failed to send ACK: %w", err)
		}
		t.startCompletedTimers()
		return nil

	default:
		return fmt.Errorf("invalid status code: %d", statusCode)
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
		t.stopTimer(transaction.TimerB)

		if err := t.sendACK(resp); err != nil {
			return fmt.Errorf("failed to send ACK: %w", err)
		}
		t.startCompletedTimers()
		return nil

	default:
		return fmt.Errorf("invalid status code: %d", statusCode)
	}
}

func (t *InviteTransaction) handleResponseInCompleted(resp types.Message, statusCode int) error {
	// A retransmitted final response: build and send the ACK again.
	if statusCode >= 300 && statusCode <= 699 {
		if err := t.sendACK(resp); err != nil {
			return fmt.Errorf("failed to retransmit ACK: %w", err)
		}
	}
	return nil
}

func (t *InviteTransaction) startCompletedTimers() {
	t.startTimer(transaction.TimerD, t.handleTimerD)
}

func (t *InviteTransaction) handleTimerD() {
	if t.State() == transaction.Completed {
		t.Terminate()
	}
}

// sendACK builds and sends the ACK for a non-2xx final response, per RFC
// 3261 §17.1.1.3. The 2xx case is the dialog layer's responsibility.
func (t *InviteTransaction) sendACK(resp types.Message) error {
	builder := transaction.NewMessageBuilder()

	ack, err := builder.BuildACKForNon2xx(t.request, resp)
	if err != nil {
		return fmt.Errorf("failed to build ACK: %w", err)
	}

	if err := t.transport.Send(ack, targetAddr(t.request)); err != nil {
		return fmt.Errorf("failed to send ACK: %w", err)
	}

	return nil
}
