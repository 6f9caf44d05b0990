// Package session implements the session coordinator (spec §4.3): it
// binds a confirmed dialog to a media session and publishes lifecycle
// events to the application, the way the transaction package publishes
// protocol events to its EventSink.
package session

import (
	"fmt"
	"sync"

	"github.com/arzzra/voipcore/internal/ids"
)

// EventKind closes the set of events the session coordinator publishes.
type EventKind int

const (
	EventSessionCreated EventKind = iota
	EventStateChanged
	EventSessionTerminated
	EventMediaUpdate
	EventSdpLocalOffer
	EventSdpRemoteAnswer
	EventSdpFinalNegotiated
	EventSdpUpdate
	EventMediaNegotiated
	EventDtmfReceived
	EventAudioFrameReceived
	EventAudioFrameRequested
	EventAudioStreamStarted
	EventAudioStreamStopped
)

func (k EventKind) String() string {
	switch k {
	case EventSessionCreated:
		return "SessionCreated"
	case EventStateChanged:
		return "StateChanged"
	case EventSessionTerminated:
		return "SessionTerminated"
	case EventMediaUpdate:
		return "MediaUpdate"
	case EventSdpLocalOffer:
		return "SdpEvent(local_offer)"
	case EventSdpRemoteAnswer:
		return "SdpEvent(remote_answer)"
	case EventSdpFinalNegotiated:
		return "SdpEvent(final_negotiated)"
	case EventSdpUpdate:
		return "SdpEvent(update)"
	case EventMediaNegotiated:
		return "MediaNegotiated"
	case EventDtmfReceived:
		return "DtmfReceived"
	case EventAudioFrameReceived:
		return "AudioFrameReceived"
	case EventAudioFrameRequested:
		return "AudioFrameRequested"
	case EventAudioStreamStarted:
		return "AudioStreamStarted"
	case EventAudioStreamStopped:
		return "AudioStreamStopped"
	default:
		return "Unknown"
	}
}

// State is the session's coarse lifecycle state.
type State int

const (
	StateCreated State = iota
	StateNegotiating
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateNegotiating:
		return "Negotiating"
	case StateActive:
		return "Active"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Event is a single session lifecycle notification.
type Event struct {
	Kind      EventKind
	SessionID string
	DialogID  string
	OldState  State
	NewState  State
	SDP       string
	Digit     rune
	Reason    string
}

// EventSink receives session events, mirroring transaction.EventSink.
type EventSink interface {
	HandleSessionEvent(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) HandleSessionEvent(ev Event) { f(ev) }

// Session binds one confirmed dialog to its media state. Media is
// created at most once, gated on ACK direction per RFC 3261 timing:
// for a UAC, after the ACK it sends; for a UAS, after the ACK it
// receives.
type Session struct {
	id       string
	dialogID string
	isUAC    bool

	mu           sync.Mutex
	state        State
	mediaCreated bool
	localSDP     string
	remoteSDP    string

	sink EventSink
}

// newSession is unexported; sessions are created through a Manager.
func newSession(dialogID string, isUAC bool, sink EventSink) *Session {
	s := &Session{
		id:       ids.NewSessionID(),
		dialogID: dialogID,
		isUAC:    isUAC,
		state:    StateCreated,
		sink:     sink,
	}
	s.emit(Event{Kind: EventSessionCreated, SessionID: s.id, DialogID: dialogID})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) emit(ev Event) {
	if s.sink != nil {
		s.sink.HandleSessionEvent(ev)
	}
}

func (s *Session) setState(newState State) {
	old := s.state
	s.state = newState
	if old != newState {
		s.emit(Event{Kind: EventStateChanged, SessionID: s.id, DialogID: s.dialogID, OldState: old, NewState: newState})
	}
}

// OfferLocalSDP records the local offer/answer body and emits
// SdpEvent{local_offer}.
func (s *Session) OfferLocalSDP(sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localSDP = sdp
	s.setState(StateNegotiating)
	s.emit(Event{Kind: EventSdpLocalOffer, SessionID: s.id, DialogID: s.dialogID, SDP: sdp})
}

// AcceptRemoteSDP records the remote answer/offer body and emits
// SdpEvent{remote_answer}.
func (s *Session) AcceptRemoteSDP(sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteSDP = sdp
	s.emit(Event{Kind: EventSdpRemoteAnswer, SessionID: s.id, DialogID: s.dialogID, SDP: sdp})
}

// FinalizeNegotiation emits SdpEvent{final_negotiated} once both sides
// of the offer/answer exchange are known.
func (s *Session) FinalizeNegotiation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localSDP == "" || s.remoteSDP == "" {
		return fmt.Errorf("session %s: negotiation incomplete", s.id)
	}
	s.emit(Event{Kind: EventSdpFinalNegotiated, SessionID: s.id, DialogID: s.dialogID})
	return nil
}

// createMedia is the at-most-once media-creation gate shared by
// OnACKSent/OnACKReceived.
func (s *Session) createMedia() {
	if s.mediaCreated {
		return
	}
	s.mediaCreated = true
	s.setState(StateActive)
	s.emit(Event{Kind: EventMediaNegotiated, SessionID: s.id, DialogID: s.dialogID})
	s.emit(Event{Kind: EventAudioStreamStarted, SessionID: s.id, DialogID: s.dialogID})
}

// OnACKSent signals that this (UAC) session sent the ACK completing
// the INVITE transaction; media is created at most once here.
func (s *Session) OnACKSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isUAC {
		s.createMedia()
	}
}

// OnACKReceived signals that this (UAS) session received the ACK
// completing the INVITE transaction; media is created at most once
// here.
func (s *Session) OnACKReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isUAC {
		s.createMedia()
	}
}

// Dtmf surfaces a received DTMF digit to the application.
func (s *Session) Dtmf(digit rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(Event{Kind: EventDtmfReceived, SessionID: s.id, DialogID: s.dialogID, Digit: digit})
}

// AudioFrameReceived/AudioFrameRequested surface the media engine's
// per-frame activity as session events without this core interpreting
// frame contents — the media engine itself stays an external
// collaborator.
func (s *Session) AudioFrameReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(Event{Kind: EventAudioFrameReceived, SessionID: s.id, DialogID: s.dialogID})
}

func (s *Session) AudioFrameRequested() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(Event{Kind: EventAudioFrameRequested, SessionID: s.id, DialogID: s.dialogID})
}

// Terminate ends the session, stopping its audio stream (if started)
// and emitting SessionTerminated exactly once.
func (s *Session) Terminate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	if s.mediaCreated {
		s.emit(Event{Kind: EventAudioStreamStopped, SessionID: s.id, DialogID: s.dialogID})
	}
	s.setState(StateTerminated)
	s.emit(Event{Kind: EventSessionTerminated, SessionID: s.id, DialogID: s.dialogID, Reason: reason})
}

// Manager owns the session_id → Session mapping for the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	sink     EventSink
}

// NewManager creates an empty session manager publishing every
// session's events to sink.
func NewManager(sink EventSink) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		sink:     sink,
	}
}

// Create binds a new session to dialogID.
func (m *Manager) Create(dialogID string, isUAC bool) *Session {
	s := newSession(dialogID, isUAC, m.sink)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a terminated session from the registry.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
