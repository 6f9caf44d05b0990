package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

func shortTimers() transaction.TransactionTimers {
	return transaction.TransactionTimers{
		T1:     20 * time.Millisecond,
		T2:     100 * time.Millisecond,
		T4:     100 * time.Millisecond,
		TimerA: 20 * time.Millisecond,
		TimerB: 10 * 20 * time.Millisecond,
		TimerD: 50 * time.Millisecond,
	}
}

func TestInviteTransactionSendsInitialRequest(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ict := NewInviteTransaction("ict-1", testKey("INVITE"), req, tr, shortTimers(), sink)

	assert.Eventually(t, func() bool { return len(tr.messages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "ict-1", ict.ID())
	assert.Equal(t, transaction.Calling, ict.State())
}

func TestInviteTransaction1xxMovesToProceeding(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ict := NewInviteTransaction("ict-2", testKey("INVITE"), req, tr, shortTimers(), sink)
	require.Eventually(t, func() bool { return len(tr.messages()) == 1 }, time.Second, time.Millisecond)

	resp100 := createTestResponse(100, "1 INVITE")
	require.NoError(t, ict.HandleResponse(resp100))
	assert.Equal(t, transaction.Proceeding, ict.State())
}

func TestInviteTransaction2xxTerminatesImmediately(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ict := NewInviteTransaction("ict-3", testKey("INVITE"), req, tr, shortTimers(), sink)
	require.Eventually(t, func() bool { return len(tr.messages()) == 1 }, time.Second, time.Millisecond)

	resp200 := createTestResponse(200, "1 INVITE")
	require.NoError(t, ict.HandleResponse(resp200))
	assert.True(t, ict.IsTerminated())

	// A 2xx never passes through Completed; the dialog layer (not this
	// transaction) is responsible for the ACK.
	assert.Len(t, tr.messages(), 1)
}

func TestInviteTransactionNon2xxSendsACK(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	ict := NewInviteTransaction("ict-4", testKey("INVITE"), req, tr, shortTimers(), sink)
	require.Eventually(t, func() bool { return len(tr.messages()) == 1 }, time.Second, time.Millisecond)

	resp486 := createTestResponse(486, "1 INVITE")
	require.NoError(t, ict.HandleResponse(resp486))

	assert.Equal(t, transaction.Completed, ict.State())
	require.Len(t, tr.messages(), 2)
	assert.Equal(t, "ACK", tr.messages()[1].Method())
}

func TestInviteTransactionTimerBTimesOut(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	sink := &recordingSink{}

	timers := shortTimers()
	timers.TimerB = 30 * time.Millisecond

	ict := NewInviteTransaction("ict-5", testKey("INVITE"), req, tr, timers, sink)

	assert.Eventually(t, func() bool { return ict.IsTerminated() }, time.Second, time.Millisecond)
	assert.True(t, sink.has(transaction.EventTransactionTimeout))
}
