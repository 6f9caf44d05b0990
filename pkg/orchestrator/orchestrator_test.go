package orchestrator

import (
	"context"
	"testing"

	"github.com/arzzra/voipcore/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAgentStartsOffline(t *testing.T) {
	o := New(nil, nil)
	a := o.RegisterAgent("agent-1", []string{"sales"})
	assert.Equal(t, AgentOffline, a.State())
}

func TestEnqueueAndProcessAllQueues(t *testing.T) {
	ctx := context.Background()
	o := New(nil, nil)
	o.RegisterQueue("sales", 10, "")

	a := o.RegisterAgent("agent-1", []string{"sales"})
	require.NoError(t, a.Login(ctx))

	require.NoError(t, o.EnqueueCall(&Call{ID: "call-1", Skill: "sales", Priority: 0}))

	assigned := o.ProcessAllQueues(ctx)
	assert.Equal(t, 1, assigned)
	assert.Equal(t, AgentBusy, a.State())
}

func TestProcessAllQueuesLeavesUnmatchedCallsQueued(t *testing.T) {
	ctx := context.Background()
	o := New(nil, nil)
	o.RegisterQueue("sales", 10, "")

	require.NoError(t, o.EnqueueCall(&Call{ID: "call-1", Skill: "sales", Priority: 0}))

	assigned := o.ProcessAllQueues(ctx)
	assert.Equal(t, 0, assigned)
	assert.Equal(t, 1, o.queues["sales"].Len())
}

func TestEnqueueCallPriorityOrdering(t *testing.T) {
	ctx := context.Background()
	o := New(nil, nil)
	o.RegisterQueue("sales", 10, "")
	a := o.RegisterAgent("agent-1", []string{"sales"})
	require.NoError(t, a.Login(ctx))

	require.NoError(t, o.EnqueueCall(&Call{ID: "low", Skill: "sales", Priority: 0}))
	require.NoError(t, o.EnqueueCall(&Call{ID: "high", Skill: "sales", Priority: 10}))

	assigned := o.ProcessAllQueues(ctx)
	assert.Equal(t, 1, assigned)
	assert.Equal(t, "agent-1", o.assignments["high"])
}

func TestEnqueueCallOverflowsToFallback(t *testing.T) {
	o := New(nil, nil)
	o.RegisterQueue("sales", 1, "general")
	o.RegisterQueue("general", 10, "")

	require.NoError(t, o.EnqueueCall(&Call{ID: "call-1", Skill: "sales"}))
	require.NoError(t, o.EnqueueCall(&Call{ID: "call-2", Skill: "sales"}))

	assert.Equal(t, 1, o.queues["sales"].Len())
	assert.Equal(t, 1, o.queues["general"].Len())
}

func TestEnqueueCallRejectsWhenFullAndNoFallback(t *testing.T) {
	o := New(nil, nil)
	o.RegisterQueue("sales", 1, "")

	require.NoError(t, o.EnqueueCall(&Call{ID: "call-1", Skill: "sales"}))
	err := o.EnqueueCall(&Call{ID: "call-2", Skill: "sales"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestAssignAgentToCallUnknownAgent(t *testing.T) {
	o := New(nil, nil)
	err := o.AssignAgentToCall(context.Background(), "nobody", &Call{ID: "call-1", Skill: "sales"})
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestSessionTerminatedReturnsAgentToWrapUp(t *testing.T) {
	ctx := context.Background()
	o := New(nil, nil)
	a := o.RegisterAgent("agent-1", []string{"sales"})
	require.NoError(t, a.Login(ctx))
	require.NoError(t, o.AssignAgentToCall(ctx, "agent-1", &Call{ID: "dialog-1", Skill: "sales"}))

	o.HandleSessionEvent(session.Event{Kind: session.EventSessionTerminated, DialogID: "dialog-1"})

	assert.Equal(t, AgentWrapUp, a.State())
}
