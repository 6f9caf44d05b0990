package transaction

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/arzzra/voipcore/pkg/sip/core/builder"
	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transport"
)

// TransactionCreator builds the concrete state machine for each of the
// six (Kind) transaction flavors. The default implementation lives in
// the creator subpackage; callers may substitute their own for testing.
type TransactionCreator interface {
	CreateClientInviteTransaction(id string, key TransactionKey, request types.Message, tr Transport, timers TransactionTimers, sink EventSink) Transaction
	CreateClientNonInviteTransaction(id string, key TransactionKey, request types.Message, tr Transport, timers TransactionTimers, sink EventSink) Transaction
	CreateClientUpdateTransaction(id string, key TransactionKey, request types.Message, tr Transport, timers TransactionTimers, sink EventSink) Transaction
	CreateServerInviteTransaction(id string, key TransactionKey, request types.Message, tr Transport, timers TransactionTimers, sink EventSink) Transaction
	CreateServerNonInviteTransaction(id string, key TransactionKey, request types.Message, tr Transport, timers TransactionTimers, sink EventSink) Transaction
	CreateServerUpdateTransaction(id string, key TransactionKey, request types.Message, tr Transport, timers TransactionTimers, sink EventSink) Transaction
}

// Manager is the transaction layer's facade: it creates and matches
// transactions, feeds inbound messages into the right state machine, and
// fans out events to the TU (the dialog layer).
type Manager struct {
	store            *Store
	transportAdapter Transport
	transportMgr     transport.TransportManager
	timers           TransactionTimers
	creator          TransactionCreator
	builder          *MessageBuilder

	sink EventSink

	stats Stats
}

// NewManager creates a Manager using the default (built-in) transaction
// creator. SetCreator can replace it before any transaction is created.
func NewManager(transportManager transport.TransportManager) *Manager {
	return NewManagerWithCreator(transportManager, nil)
}

// NewManagerWithCreator creates a Manager with an explicit TransactionCreator.
func NewManagerWithCreator(transportManager transport.TransportManager, c TransactionCreator) *Manager {
	m := &Manager{
		store:            NewStore(),
		transportAdapter: NewTransportAdapter(transportManager),
		transportMgr:     transportManager,
		timers:           DefaultTimers(),
		creator:          c,
		builder:          NewMessageBuilder(),
	}

	transportManager.OnMessage(m.handleIncomingMessage)

	return m
}

// SetCreator installs the factory used to build new transactions.
func (m *Manager) SetCreator(c TransactionCreator) {
	m.creator = c
}

// SetEventSink installs the TU-facing sink that receives every
// transaction-layer event (the dialog layer implements EventSink).
func (m *Manager) SetEventSink(sink EventSink) {
	m.sink = sink
}

// SetTimers replaces the timer profile used for transactions created
// from this point on.
func (m *Manager) SetTimers(timers TransactionTimers) {
	m.timers = timers
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Created:       atomic.LoadUint64(&m.stats.Created),
		Terminated:    atomic.LoadUint64(&m.stats.Terminated),
		TimedOut:      atomic.LoadUint64(&m.stats.TimedOut),
		Retransmits:   atomic.LoadUint64(&m.stats.Retransmits),
		TransportErr:  atomic.LoadUint64(&m.stats.TransportErr),
		StrayMessages: atomic.LoadUint64(&m.stats.StrayMessages),
	}
}

// Close shuts the manager and its transaction store down.
func (m *Manager) Close() error {
	return m.store.Close()
}

// wrapSink returns an EventSink that removes terminated transactions from
// the store, updates counters, and forwards every event to the TU sink.
func (m *Manager) wrapSink() EventSink {
	return EventSinkFunc(func(ev Event) {
		switch ev.Kind {
		case EventTransactionTerminated:
			m.store.Remove(ev.Key)
			atomic.AddUint64(&m.stats.Terminated, 1)
		case EventTransactionTimeout:
			atomic.AddUint64(&m.stats.TimedOut, 1)
		case EventTransportError:
			atomic.AddUint64(&m.stats.TransportErr, 1)
		}
		if m.sink != nil {
			m.sink.HandleTransactionEvent(ev)
		}
	})
}

// CreateClientTransaction creates and starts a client transaction for
// req (INVITE, UPDATE, or any other non-INVITE method).
func (m *Manager) CreateClientTransaction(req types.Message) (Transaction, error) {
	if !req.IsRequest() {
		return nil, fmt.Errorf("%w: cannot create client transaction from response", ErrInvalidRequest)
	}
	if m.creator == nil {
		return nil, fmt.Errorf("transaction creator not set")
	}

	key, err := GenerateTransactionKey(req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction key: %w", err)
	}
	if _, ok := m.store.Get(key); ok {
		return nil, ErrTransactionExists
	}

	id := GenerateTransactionID()
	sink := m.wrapSink()

	var tx Transaction
	switch req.Method() {
	case "INVITE":
		tx = m.creator.CreateClientInviteTransaction(id, key, req, m.transportAdapter, m.timers, sink)
	case "UPDATE":
		tx = m.creator.CreateClientUpdateTransaction(id, key, req, m.transportAdapter, m.timers, sink)
	default:
		tx = m.creator.CreateClientNonInviteTransaction(id, key, req, m.transportAdapter, m.timers, sink)
	}

	if err := m.store.Add(tx); err != nil {
		return nil, fmt.Errorf("failed to add transaction to store: %w", err)
	}
	atomic.AddUint64(&m.stats.Created, 1)

	return tx, nil
}

// CreateServerTransaction creates a server transaction for an incoming
// req (INVITE, UPDATE, or any other non-INVITE method). CANCEL and ACK
// are handled by HandleRequest directly; they never reach here.
func (m *Manager) CreateServerTransaction(req types.Message) (Transaction, error) {
	if !req.IsRequest() {
		return nil, fmt.Errorf("%w: cannot create server transaction from response", ErrInvalidRequest)
	}
	if m.creator == nil {
		return nil, fmt.Errorf("transaction creator not set")
	}

	key, err := GenerateTransactionKey(req, false)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction key: %w", err)
	}
	if _, ok := m.store.Get(key); ok {
		return nil, ErrTransactionExists
	}

	id := GenerateTransactionID()
	sink := m.wrapSink()

	var tx Transaction
	switch req.Method() {
	case "INVITE":
		tx = m.creator.CreateServerInviteTransaction(id, key, req, m.transportAdapter, m.timers, sink)
	case "UPDATE":
		tx = m.creator.CreateServerUpdateTransaction(id, key, req, m.transportAdapter, m.timers, sink)
	default:
		tx = m.creator.CreateServerNonInviteTransaction(id, key, req, m.transportAdapter, m.timers, sink)
	}

	if err := m.store.Add(tx); err != nil {
		return nil, fmt.Errorf("failed to add transaction to store: %w", err)
	}
	atomic.AddUint64(&m.stats.Created, 1)

	return tx, nil
}

// FindTransaction looks a transaction up by its exact key.
func (m *Manager) FindTransaction(key TransactionKey) (Transaction, bool) {
	return m.store.Get(key)
}

// FindTransactionByMessage looks up the transaction msg belongs to.
func (m *Manager) FindTransactionByMessage(msg types.Message) (Transaction, bool) {
	key, err := MatchingKey(msg)
	if err != nil {
		return nil, false
	}
	return m.store.Get(key)
}

// findInviteServerByBranch finds the INVITE server transaction sharing
// branch, used to route a CANCEL to its INVITE.
func (m *Manager) findInviteServerByBranch(branch string) (Transaction, bool) {
	return m.store.Get(TransactionKey{Branch: branch, Method: "INVITE", Client: false})
}

// HandleRequest routes an inbound request to the matching transaction,
// creating a new server transaction when none exists. ACK and CANCEL are
// handled specially since they never create an ordinary server transaction.
func (m *Manager) HandleRequest(req types.Message, addr net.Addr) error {
	if !req.IsRequest() {
		return fmt.Errorf("%w: not a request", ErrInvalidRequest)
	}

	switch req.Method() {
	case "ACK":
		return m.handleIncomingACK(req)
	case "CANCEL":
		return m.handleIncomingCANCEL(req, addr)
	}

	key, err := GenerateTransactionKey(req, false)
	if err != nil {
		return fmt.Errorf("failed to generate transaction key: %w", err)
	}

	if tx, ok := m.store.Get(key); ok {
		return tx.HandleRequest(req)
	}

	_, err = m.CreateServerTransaction(req)
	if err != nil {
		return fmt.Errorf("failed to create server transaction: %w", err)
	}

	if m.sink != nil {
		m.sink.HandleTransactionEvent(Event{Kind: EventNewRequest, Key: key, Message: req, SourceAddr: addr})
	}

	return nil
}

// handleIncomingACK routes an ACK to the INVITE server transaction it
// acknowledges (RFC 3261 §17.2.3: the ACK's method is taken to be INVITE
// for matching purposes). An ACK to a 2xx has no matching transaction
// (the INVITE server transaction already terminated on the 2xx) and is
// delivered to the TU as a stray ACK — the dialog layer owns that case.
func (m *Manager) handleIncomingACK(ack types.Message) error {
	key, err := GenerateTransactionKey(ack, false)
	if err != nil {
		return fmt.Errorf("failed to generate transaction key for ACK: %w", err)
	}

	if tx, ok := m.store.Get(key); ok {
		return tx.HandleRequest(ack)
	}

	atomic.AddUint64(&m.stats.StrayMessages, 1)
	if m.sink != nil {
		m.sink.HandleTransactionEvent(Event{Kind: EventStrayAck, Key: key, Message: ack})
	}
	return nil
}

// handleIncomingCANCEL creates the CANCEL's own server transaction,
// answers it with 200 OK, and if a matching INVITE server transaction is
// still running, asks it to send 487 Request Terminated, per RFC 3261
// §9.2. If no matching INVITE transaction exists, a stray-cancel event
// is raised and the CANCEL server transaction still gets its 200 OK,
// since §9.2 requires the 200 response regardless of whether a matching
// transaction was found.
func (m *Manager) handleIncomingCANCEL(cancel types.Message, addr net.Addr) error {
	cancelTx, err := m.CreateServerTransaction(cancel)
	if err != nil {
		return fmt.Errorf("failed to create CANCEL transaction: %w", err)
	}

	key, err := GenerateTransactionKey(cancel, false)
	if err != nil {
		return fmt.Errorf("failed to generate transaction key for CANCEL: %w", err)
	}

	okResp, buildErr := builder.CreateResponse(cancel, 200, "OK").Build()
	if buildErr == nil {
		_ = cancelTx.SendResponse(okResp)
	}

	target, found := m.findInviteServerByBranch(key.Branch)
	if !found {
		atomic.AddUint64(&m.stats.StrayMessages, 1)
		if m.sink != nil {
			m.sink.HandleTransactionEvent(Event{Kind: EventStrayCancel, Key: key, Message: cancel, SourceAddr: addr})
		}
		return nil
	}

	if target.IsTerminated() {
		return nil
	}

	termResp, buildErr := builder.CreateResponse(target.Request(), 487, "Request Terminated").Build()
	if buildErr != nil {
		return buildErr
	}
	return target.SendResponse(termResp)
}

// HandleResponse routes an inbound response to the client transaction
// that originated its request.
func (m *Manager) HandleResponse(resp types.Message, addr net.Addr) error {
	if !resp.IsResponse() {
		return fmt.Errorf("%w: not a response", ErrInvalidResponse)
	}

	tx, ok := m.FindTransactionByMessage(resp)
	if !ok {
		atomic.AddUint64(&m.stats.StrayMessages, 1)
		if m.sink != nil {
			m.sink.HandleTransactionEvent(Event{Kind: EventStrayResponse, Message: resp, SourceAddr: addr})
		}
		return nil
	}

	return tx.HandleResponse(resp)
}

// CancelInviteTransaction sends a CANCEL for the INVITE client
// transaction matching key, per RFC 3261 §9.1. It is only valid while
// the INVITE transaction is in Calling or Proceeding (i.e. before a
// final response has been received).
func (m *Manager) CancelInviteTransaction(key TransactionKey) (Transaction, error) {
	tx, ok := m.store.Get(key)
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if tx.Kind() != InviteClient {
		return nil, fmt.Errorf("%w: not an INVITE client transaction", ErrCannotCancel)
	}
	switch tx.State() {
	case Calling, Proceeding:
	default:
		return nil, ErrCannotCancel
	}

	cancelReq, err := m.builder.BuildCANCEL(tx.Request())
	if err != nil {
		return nil, fmt.Errorf("failed to build CANCEL: %w", err)
	}

	return m.CreateClientTransaction(cancelReq)
}

func (m *Manager) handleIncomingMessage(msg types.Message, addr net.Addr, _ transport.Transport) {
	var err error
	if msg.IsRequest() {
		err = m.HandleRequest(msg, addr)
	} else {
		err = m.HandleResponse(msg, addr)
	}
	if err != nil && m.sink != nil {
		m.sink.HandleTransactionEvent(Event{Kind: EventTransportError, Message: msg, SourceAddr: addr, Err: err})
	}
}
