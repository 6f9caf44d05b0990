package transaction

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTimers(t *testing.T) {
	timers := DefaultTimers()

	assert.Equal(t, 500*time.Millisecond, timers.T1)
	assert.Equal(t, 4*time.Second, timers.T2)
	assert.Equal(t, 5*time.Second, timers.T4)

	assert.Equal(t, timers.T1, timers.TimerA)
	assert.Equal(t, 64*timers.T1, timers.TimerB)
	assert.Equal(t, 64*timers.T1, timers.TimerH)
	assert.Equal(t, 64*timers.T1, timers.TimerJ)
	assert.Equal(t, 64*timers.T1, timers.TimerF)
	assert.Equal(t, timers.T4, timers.TimerI)
	assert.Equal(t, timers.T4, timers.TimerK)
}

func TestGetTimerDuration(t *testing.T) {
	timers := DefaultTimers()

	tests := []struct {
		id       TimerID
		expected time.Duration
	}{
		{TimerA, timers.TimerA},
		{TimerB, timers.TimerB},
		{TimerD, timers.TimerD},
		{TimerE, timers.TimerE},
		{TimerF, timers.TimerF},
		{TimerG, timers.TimerG},
		{TimerH, timers.TimerH},
		{TimerI, timers.TimerI},
		{TimerJ, timers.TimerJ},
		{TimerK, timers.TimerK},
		{"invalid", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, timers.GetTimerDuration(tt.id))
	}
}

func TestForReliableTransport(t *testing.T) {
	timers := DefaultTimers()
	adjusted := timers.ForReliableTransport()

	assert.Zero(t, adjusted.TimerA)
	assert.Zero(t, adjusted.TimerD)
	assert.Zero(t, adjusted.TimerE)
	assert.Zero(t, adjusted.TimerG)
	assert.Zero(t, adjusted.TimerI)
	assert.Zero(t, adjusted.TimerJ)
	assert.Zero(t, adjusted.TimerK)

	assert.Equal(t, timers.TimerB, adjusted.TimerB)
	assert.Equal(t, timers.TimerF, adjusted.TimerF)
	assert.Equal(t, timers.TimerH, adjusted.TimerH)
}

func TestTimer(t *testing.T) {
	called := false
	timer := NewTimer(TimerA, 50*time.Millisecond, func() { called = true })
	require.NotNil(t, timer)

	assert.Eventually(t, func() bool { return called }, time.Second, time.Millisecond)

	called = false
	timer2 := NewTimer(TimerB, 50*time.Millisecond, func() { called = true })
	assert.True(t, timer2.Stop())

	time.Sleep(100 * time.Millisecond)
	assert.False(t, called)

	timer3 := NewTimer(TimerD, 0, func() {})
	assert.Nil(t, timer3)
}

func TestTimerReset(t *testing.T) {
	called := 0
	timer := NewTimer(TimerA, 50*time.Millisecond, func() { called++ })
	require.NotNil(t, timer)

	timer.Reset(200 * time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, called)

	assert.Eventually(t, func() bool { return called == 1 }, time.Second, time.Millisecond)
}

func TestTimerManager(t *testing.T) {
	tm := NewTimerManager()

	called := make(map[TimerID]int)
	var mu sync.Mutex

	tm.Start(TimerA, 50*time.Millisecond, func() {
		mu.Lock()
		called[TimerA]++
		mu.Unlock()
	})
	tm.Start(TimerB, 100*time.Millisecond, func() {
		mu.Lock()
		called[TimerB]++
		mu.Unlock()
	})

	assert.True(t, tm.IsActive(TimerA))
	assert.True(t, tm.IsActive(TimerB))

	assert.True(t, tm.Stop(TimerA))
	assert.False(t, tm.IsActive(TimerA))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return called[TimerB] == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Zero(t, called[TimerA])
	mu.Unlock()
}

func TestTimerManagerStopAll(t *testing.T) {
	tm := NewTimerManager()

	called := false
	callback := func() { called = true }

	tm.Start(TimerA, 50*time.Millisecond, callback)
	tm.Start(TimerB, 50*time.Millisecond, callback)
	tm.Start(TimerD, 50*time.Millisecond, callback)

	tm.StopAll()

	assert.False(t, tm.IsActive(TimerA))
	assert.False(t, tm.IsActive(TimerB))
	assert.False(t, tm.IsActive(TimerD))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, called)
}

func TestNextRetransmitInterval(t *testing.T) {
	t2 := 4 * time.Second

	tests := []struct {
		current  time.Duration
		expected time.Duration
	}{
		{500 * time.Millisecond, 1 * time.Second},
		{1 * time.Second, 2 * time.Second},
		{2 * time.Second, 4 * time.Second},
		{4 * time.Second, 4 * time.Second},
		{8 * time.Second, 4 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NextRetransmitInterval(tt.current, t2))
	}
}
