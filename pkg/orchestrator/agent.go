package orchestrator

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// Agent availability states (spec §4.5): an agent is Available, Busy on
// a call, in WrapUp after a call ends, or Offline.
const (
	AgentAvailable = "available"
	AgentBusy      = "busy"
	AgentWrapUp    = "wrap_up"
	AgentOffline   = "offline"
)

// Agent is a queue-eligible call-center agent, its availability driven
// by a looplab/fsm state machine the way the dialog layer's REFER
// subscription state is driven in the teacher.
type Agent struct {
	ID     string
	Skills []string

	mu  sync.Mutex
	fsm *fsm.FSM
}

// NewAgent registers a new agent, starting Offline.
func NewAgent(id string, skills []string) *Agent {
	a := &Agent{ID: id, Skills: skills}
	a.fsm = fsm.NewFSM(
		AgentOffline,
		fsm.Events{
			{Name: "login", Src: []string{AgentOffline}, Dst: AgentAvailable},
			{Name: "assign", Src: []string{AgentAvailable}, Dst: AgentBusy},
			{Name: "call_ended", Src: []string{AgentBusy}, Dst: AgentWrapUp},
			{Name: "wrap_up_done", Src: []string{AgentWrapUp}, Dst: AgentAvailable},
			{Name: "logout", Src: []string{AgentAvailable, AgentWrapUp}, Dst: AgentOffline},
		},
		nil,
	)
	return a
}

// State returns the agent's current availability state.
func (a *Agent) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsm.Current()
}

func (a *Agent) transition(ctx context.Context, event string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsm.Event(ctx, event)
}

// Login marks the agent Available.
func (a *Agent) Login(ctx context.Context) error { return a.transition(ctx, "login") }

// Logout marks the agent Offline.
func (a *Agent) Logout(ctx context.Context) error { return a.transition(ctx, "logout") }

// CallEnded moves a Busy agent into WrapUp.
func (a *Agent) CallEnded(ctx context.Context) error { return a.transition(ctx, "call_ended") }

// WrapUpDone returns a WrapUp agent to Available.
func (a *Agent) WrapUpDone(ctx context.Context) error { return a.transition(ctx, "wrap_up_done") }

func (a *Agent) hasSkill(skill string) bool {
	for _, s := range a.Skills {
		if s == skill {
			return true
		}
	}
	return false
}
