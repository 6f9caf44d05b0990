// Package orchestrator implements the call-center routing layer (spec
// §4.5): agents register with a set of skills, calls are enqueued per
// skill group, and process_all_queues matches queued calls to
// available agents.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arzzra/voipcore/internal/logging"
	"github.com/arzzra/voipcore/internal/metrics"
	"github.com/arzzra/voipcore/pkg/session"
)

// ErrQueueFull is returned by enqueue_call when a skill's queue (and
// its fallback, if any) are both at capacity. Callers translate this
// into a 486 Busy Here response.
var ErrQueueFull = fmt.Errorf("orchestrator: queue full")

// ErrUnknownAgent is returned when assign_agent_to_call names an
// agent that was never registered.
var ErrUnknownAgent = fmt.Errorf("orchestrator: unknown agent")

// ErrNoAgentAvailable names the condition of a queue that has calls
// waiting but no matching agent Available. ProcessAllQueues does not
// return it: it leaves such calls queued and reports them only through
// its assigned-call count.
var ErrNoAgentAvailable = fmt.Errorf("orchestrator: no agent available")

// Orchestrator owns the agent roster and per-skill call queues for one
// call center.
type Orchestrator struct {
	mu sync.Mutex

	agents map[string]*Agent
	queues map[string]*Queue

	// fallback names the queue overflow is routed to when a skill's own
	// queue is full, keyed by skill.
	fallback map[string]string

	// assignments tracks which agent is handling which call, so a
	// session-terminated event can return the agent to WrapUp.
	assignments map[string]string // callID -> agentID

	metrics *metrics.Metrics
	log     *logging.Logger
}

// New creates an empty orchestrator. m may be nil, in which case
// metrics are skipped; a nil log falls back to logging.Default().
func New(m *metrics.Metrics, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Default()
	}
	return &Orchestrator{
		agents:      make(map[string]*Agent),
		queues:      make(map[string]*Queue),
		fallback:    make(map[string]string),
		assignments: make(map[string]string),
		metrics:     m,
		log:         log.WithComponent("orchestrator"),
	}
}

// RegisterQueue creates (or replaces the capacity of) the queue for a
// skill group, optionally overflowing into fallbackSkill's queue when
// full. fallbackSkill may be empty for no fallback.
func (o *Orchestrator) RegisterQueue(skill string, capacity int, fallbackSkill string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queues[skill] = NewQueue(skill, capacity)
	if fallbackSkill != "" {
		o.fallback[skill] = fallbackSkill
	}
}

// RegisterAgent implements register_agent: it adds agent to the
// roster, Offline until it logs in.
func (o *Orchestrator) RegisterAgent(id string, skills []string) *Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	a := NewAgent(id, skills)
	o.agents[id] = a
	o.log.Info(context.Background(), "agent registered", logging.Str("agent_id", id))
	return a
}

// EnqueueCall implements enqueue_call: it places call on its skill's
// queue, falling back to a configured fallback queue on overflow, and
// finally returning ErrQueueFull so the caller can reject with 486.
func (o *Orchestrator) EnqueueCall(call *Call) error {
	o.mu.Lock()
	q, ok := o.queues[call.Skill]
	if !ok {
		q = NewQueue(call.Skill, 0)
		o.queues[call.Skill] = q
	}

	target := q
	if q.Full() {
		if fb, ok := o.fallback[call.Skill]; ok {
			if fq, ok := o.queues[fb]; ok && !fq.Full() {
				target = fq
			} else {
				o.mu.Unlock()
				o.observeAbandoned()
				return ErrQueueFull
			}
		} else {
			o.mu.Unlock()
			o.observeAbandoned()
			return ErrQueueFull
		}
	}
	o.mu.Unlock()

	target.Push(call)
	o.observeQueueDepth(target.Skill, target.Len())
	return nil
}

// AssignAgentToCall implements assign_agent_to_call: it transitions
// agentID from Available to Busy and records the assignment.
func (o *Orchestrator) AssignAgentToCall(ctx context.Context, agentID string, call *Call) error {
	o.mu.Lock()
	a, ok := o.agents[agentID]
	o.mu.Unlock()
	if !ok {
		return ErrUnknownAgent
	}
	if err := a.transition(ctx, "assign"); err != nil {
		return fmt.Errorf("orchestrator: assign agent %s: %w", agentID, err)
	}

	o.mu.Lock()
	o.assignments[call.ID] = agentID
	o.mu.Unlock()

	o.observeAgentStates()
	if o.metrics != nil {
		o.metrics.CallsHandled.Inc()
	}
	o.log.Info(ctx, "agent assigned to call", logging.Str("agent_id", agentID), logging.Str("call_id", call.ID))
	return nil
}

// availableAgentFor returns an Available agent matching skill, or nil.
func (o *Orchestrator) availableAgentFor(skill string) *Agent {
	var candidates []*Agent
	for _, a := range o.agents {
		if a.State() == AgentAvailable && a.hasSkill(skill) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates[0]
}

// ProcessAllQueues implements process_all_queues: for every skill
// queue, while there is a queued call and an Available agent with that
// skill, it assigns the front of the queue to that agent. It returns
// the number of calls assigned.
func (o *Orchestrator) ProcessAllQueues(ctx context.Context) int {
	o.mu.Lock()
	skills := make([]string, 0, len(o.queues))
	for skill := range o.queues {
		skills = append(skills, skill)
	}
	sort.Strings(skills)
	o.mu.Unlock()

	assigned := 0
	for _, skill := range skills {
		o.mu.Lock()
		q := o.queues[skill]
		o.mu.Unlock()
		if q == nil {
			continue
		}
		for {
			o.mu.Lock()
			agent := o.availableAgentFor(skill)
			o.mu.Unlock()
			if agent == nil {
				break
			}
			call := q.Pop()
			if call == nil {
				break
			}
			if err := o.AssignAgentToCall(ctx, agent.ID, call); err != nil {
				o.log.Warn(ctx, "assignment failed during queue processing", logging.Str("agent_id", agent.ID), logging.Err(err))
				continue
			}
			assigned++
			o.observeQueueDepth(skill, q.Len())
		}
	}
	return assigned
}

// HandleSessionEvent implements session.EventSink: a terminated
// session returns its agent to WrapUp, matching the teacher's pattern
// of driving FSM transitions off protocol-layer events.
func (o *Orchestrator) HandleSessionEvent(ev session.Event) {
	if ev.Kind != session.EventSessionTerminated {
		return
	}
	o.mu.Lock()
	agentID, ok := o.assignments[ev.DialogID]
	if ok {
		delete(o.assignments, ev.DialogID)
	}
	a := o.agents[agentID]
	o.mu.Unlock()
	if !ok || a == nil {
		return
	}
	if err := a.CallEnded(context.Background()); err != nil {
		o.log.Warn(context.Background(), "call_ended transition failed", logging.Str("agent_id", agentID), logging.Err(err))
		return
	}
	o.observeAgentStates()
}

func (o *Orchestrator) observeQueueDepth(skill string, depth int) {
	if o.metrics == nil {
		return
	}
	o.metrics.QueueDepth.WithLabelValues(skill).Set(float64(depth))
}

func (o *Orchestrator) observeAbandoned() {
	if o.metrics != nil {
		o.metrics.CallsAbandoned.Inc()
	}
}

func (o *Orchestrator) observeAgentStates() {
	if o.metrics == nil {
		return
	}
	o.mu.Lock()
	counts := map[string]int{AgentAvailable: 0, AgentBusy: 0, AgentWrapUp: 0, AgentOffline: 0}
	for _, a := range o.agents {
		counts[a.State()]++
	}
	o.mu.Unlock()
	for state, n := range counts {
		o.metrics.AgentsByState.WithLabelValues(state).Set(float64(n))
	}
}
