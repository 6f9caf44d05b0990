package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

func shortServerTimers() transaction.TransactionTimers {
	return transaction.TransactionTimers{
		T1:     20 * time.Millisecond,
		T2:     100 * time.Millisecond,
		T4:     100 * time.Millisecond,
		TimerG: 20 * time.Millisecond,
		TimerH: 10 * 20 * time.Millisecond,
		TimerI: 30 * time.Millisecond,
	}
}

func TestInviteTransactionCreation(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-1", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	assert.Equal(t, "ist-1", ist.ID())
	assert.Equal(t, transaction.Proceeding, ist.State())
}

func TestInviteTransaction1xxResponse(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-2", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	require.NoError(t, ist.SendResponse(createTestResponse(100, "1 INVITE")))
	assert.Equal(t, transaction.Proceeding, ist.State())

	require.NoError(t, ist.SendResponse(createTestResponse(180, "1 INVITE")))
	assert.Equal(t, transaction.Proceeding, ist.State())

	assert.Len(t, tr.messages(), 2)
}

func TestInviteTransaction2xxResponse(t *testing.T) {
	tr := &mockTransport{reliable: true}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-3", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	require.NoError(t, ist.SendResponse(createTestResponse(200, "1 INVITE")))
	assert.True(t, ist.IsTerminated())
}

func TestInviteTransaction4xxResponseRetransmits(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-4", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	require.NoError(t, ist.SendResponse(createTestResponse(486, "1 INVITE")))
	assert.Equal(t, transaction.Completed, ist.State())

	assert.Eventually(t, func() bool { return len(tr.messages()) >= 2 }, time.Second, time.Millisecond)
}

func TestInviteTransactionACK(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-5", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	require.NoError(t, ist.SendResponse(createTestResponse(404, "1 INVITE")))
	require.Equal(t, transaction.Completed, ist.State())

	ack := createTestRequest("ACK")
	require.NoError(t, ist.HandleACK(ack))
	assert.Equal(t, transaction.Confirmed, ist.State())

	assert.Eventually(t, func() bool { return ist.IsTerminated() }, time.Second, time.Millisecond)
}

func TestInviteTransactionTimeoutTerminatesWithoutACK(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	timers := shortServerTimers()
	timers.TimerH = 30 * time.Millisecond

	ist := NewInviteTransaction("ist-6", testKey("INVITE"), req, tr, timers, sink)

	require.NoError(t, ist.SendResponse(createTestResponse(500, "1 INVITE")))

	assert.Eventually(t, func() bool { return ist.IsTerminated() }, time.Second, time.Millisecond)
}

func TestInviteTransactionReliableTransportNoRetransmit(t *testing.T) {
	tr := &mockTransport{reliable: true}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-7", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	require.NoError(t, ist.SendResponse(createTestResponse(403, "1 INVITE")))
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, tr.messages(), 1)

	require.NoError(t, ist.HandleACK(createTestRequest("ACK")))
	assert.Eventually(t, func() bool { return ist.IsTerminated() }, time.Second, time.Millisecond)
}

func TestInviteTransactionRetransmittedRequestReplaysLastResponse(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-8", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	require.NoError(t, ist.SendResponse(createTestResponse(100, "1 INVITE")))
	before := len(tr.messages())

	require.NoError(t, ist.HandleRequest(req))
	assert.Equal(t, before+1, len(tr.messages()))
	assert.Equal(t, 100, tr.messages()[len(tr.messages())-1].StatusCode())
}

func TestInviteTransactionMultipleACK(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ist := NewInviteTransaction("ist-9", testKey("INVITE"), req, tr, shortServerTimers(), sink)

	require.NoError(t, ist.SendResponse(createTestResponse(404, "1 INVITE")))

	ack := createTestRequest("ACK")
	require.NoError(t, ist.HandleACK(ack))
	assert.Equal(t, transaction.Confirmed, ist.State())

	require.NoError(t, ist.HandleACK(ack))
	assert.Equal(t, transaction.Confirmed, ist.State())
}
