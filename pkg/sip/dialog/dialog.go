package dialog

import (
	"context"
	"fmt"
	"sync"

	"github.com/arzzra/voipcore/pkg/sip/core/builder"
	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// DialogTransactionManager is the minimal slice of *transaction.Manager a
// Dialog needs to originate in-dialog requests (BYE, REFER, re-INVITE).
// Incoming INVITE server transactions are created by the stack and handed
// to the dialog via SetInviteTransaction.
type DialogTransactionManager interface {
	CreateClientTransaction(req types.Message) (transaction.Transaction, error)
}

// Dialog is the concrete IDialog implementation: one RFC 3261 §12 call leg,
// tracking its own state machine, CSeq counters and route set.
type Dialog struct {
	mu sync.RWMutex

	key   DialogKey
	isUAC bool

	localURI  types.URI
	remoteURI types.URI

	stateMachine    *DialogStateMachine
	sequenceManager *SequenceManager
	targetManager   *TargetManager

	txManager DialogTransactionManager
	inviteTx  transaction.Transaction
	referTx   transaction.Transaction

	referSubscriptions map[string]*ReferSubscription

	stateCallbacks []func(DialogState)
	bodyCallbacks  []func(Body)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDialog creates a Dialog for the given identity and role. remoteURI
// seeds the target manager before any Contact refresh arrives.
func NewDialog(key DialogKey, isUAC bool, localURI, remoteURI types.URI, txManager DialogTransactionManager) *Dialog {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dialog{
		key:                 key,
		isUAC:               isUAC,
		localURI:            localURI,
		remoteURI:           remoteURI,
		stateMachine:        NewDialogStateMachine(isUAC),
		sequenceManager:     NewSequenceManager(GenerateInitialCSeq(), isUAC),
		targetManager:       NewTargetManager(remoteURI, isUAC),
		txManager:           txManager,
		referSubscriptions:  make(map[string]*ReferSubscription),
		ctx:                 ctx,
		cancel:              cancel,
	}

	d.stateMachine.OnStateChange(d.notifyStateChange)

	return d
}

// Key returns the dialog's identity (Call-ID + tags).
func (d *Dialog) Key() DialogKey {
	return d.key
}

// State returns the current dialog state.
func (d *Dialog) State() DialogState {
	return d.stateMachine.GetState()
}

// LocalTag returns this side's tag.
func (d *Dialog) LocalTag() string {
	return d.key.LocalTag
}

// RemoteTag returns the peer's tag.
func (d *Dialog) RemoteTag() string {
	return d.key.RemoteTag
}

// SetInviteTransaction attaches the server transaction of the INVITE that
// created this dialog, so Accept/Reject know what to answer.
func (d *Dialog) SetInviteTransaction(tx transaction.Transaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inviteTx = tx
}

// Accept answers the pending INVITE with 200 OK and moves the dialog to
// Established.
func (d *Dialog) Accept(ctx context.Context, opts ...ResponseOpt) error {
	d.mu.RLock()
	tx := d.inviteTx
	localURI := d.localURI
	d.mu.RUnlock()

	if tx == nil {
		return fmt.Errorf("dialog has no pending INVITE transaction")
	}

	resp, err := builder.CreateResponse(tx.Request(), 200, "OK").Build()
	if err != nil {
		return fmt.Errorf("failed to build 200 OK: %w", err)
	}

	response := resp.(*types.Response)
	contact := types.NewAddress("", localURI)
	response.SetHeader(types.HeaderContact, contact.String())

	for _, opt := range opts {
		opt(response)
	}

	if err := tx.SendResponse(response); err != nil {
		return fmt.Errorf("failed to send 200 OK: %w", err)
	}

	return d.stateMachine.TransitionTo(DialogStateEstablished)
}

// Reject answers the pending INVITE with the given failure response and
// terminates the dialog.
func (d *Dialog) Reject(ctx context.Context, code int, reason string) error {
	d.mu.RLock()
	tx := d.inviteTx
	d.mu.RUnlock()

	if tx == nil {
		return fmt.Errorf("dialog has no pending INVITE transaction")
	}

	resp, err := builder.CreateResponse(tx.Request(), code, reason).Build()
	if err != nil {
		return fmt.Errorf("failed to build %d response: %w", code, err)
	}

	if err := tx.SendResponse(resp); err != nil {
		return fmt.Errorf("failed to send %d response: %w", code, err)
	}

	return d.stateMachine.TransitionTo(DialogStateTerminated)
}

// Bye sends a BYE, moves the dialog to Terminating, and finishes the
// transition to Terminated once the peer's final response arrives.
func (d *Dialog) Bye(ctx context.Context, reason string) error {
	if !d.stateMachine.IsEstablished() {
		return ErrInvalidState
	}

	bye := d.createRequest(types.MethodBYE)
	if reason != "" {
		bye.SetHeader("Reason", reason)
	}

	tx, err := d.txManager.CreateClientTransaction(bye)
	if err != nil {
		return fmt.Errorf("failed to send BYE: %w", err)
	}

	if err := d.stateMachine.TransitionTo(DialogStateTerminating); err != nil {
		return err
	}

	go func() {
		<-tx.Context().Done()
		_ = d.stateMachine.TransitionTo(DialogStateTerminated)
	}()

	return nil
}

// ProcessRequest handles an in-dialog request from the peer: validates its
// CSeq and drives the state machine (BYE terminates, etc).
func (d *Dialog) ProcessRequest(req types.Message) error {
	if d.stateMachine.IsTerminated() {
		return ErrTerminated
	}

	cseq, method, err := ParseCSeq(req.GetHeader(types.HeaderCSeq))
	if err != nil {
		return fmt.Errorf("invalid CSeq: %w", err)
	}
	if !d.sequenceManager.ValidateRemoteCSeq(cseq, method) {
		return ErrCSeqOutOfOrder
	}
	if method == types.MethodINVITE {
		d.sequenceManager.SetInviteCSeq(cseq, method)
	}

	if err := d.targetManager.UpdateFromRequest(req); err != nil {
		return err
	}

	if err := d.stateMachine.ProcessRequest(req.Method(), 0); err != nil {
		return err
	}

	if body := req.Body(); len(body) > 0 {
		d.notifyBody(NewSimpleBody(req.GetHeader(types.HeaderContentType), body))
	}

	return nil
}

// ProcessResponse handles a response belonging to one of the dialog's own
// transactions, refreshing the route set and target URI and driving the
// state machine for the INVITE transaction.
func (d *Dialog) ProcessResponse(resp types.Message, requestMethod string) error {
	if err := d.targetManager.UpdateFromResponse(resp, requestMethod); err != nil {
		return err
	}

	return d.stateMachine.ProcessResponse(requestMethod, resp.StatusCode())
}

// OnStateChange registers a callback invoked whenever the dialog's state
// changes.
func (d *Dialog) OnStateChange(fn func(DialogState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateCallbacks = append(d.stateCallbacks, fn)
}

// OnBody registers a callback invoked whenever an in-dialog message carries
// a body.
func (d *Dialog) OnBody(fn func(Body)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bodyCallbacks = append(d.bodyCallbacks, fn)
}

// Close tears down the dialog's context without sending BYE. Used for
// local cleanup when the peer is already known to be gone.
func (d *Dialog) Close() error {
	d.cancel()
	return nil
}

func (d *Dialog) notifyStateChange(state DialogState) {
	d.mu.RLock()
	callbacks := append([]func(DialogState){}, d.stateCallbacks...)
	d.mu.RUnlock()

	for _, cb := range callbacks {
		cb(state)
	}
}

func (d *Dialog) notifyBody(body Body) {
	d.mu.RLock()
	callbacks := append([]func(Body){}, d.bodyCallbacks...)
	d.mu.RUnlock()

	for _, cb := range callbacks {
		cb(body)
	}
}

// createRequest builds an in-dialog request addressed per the current
// target URI and route set (RFC 3261 §12.2.1.1).
func (d *Dialog) createRequest(method string) types.Message {
	d.mu.RLock()
	localURI := d.localURI
	remoteURI := d.remoteURI
	localTag := d.key.LocalTag
	remoteTag := d.key.RemoteTag
	callID := d.key.CallID
	d.mu.RUnlock()

	cseq := d.sequenceManager.NextLocalCSeq()
	if method == types.MethodINVITE {
		d.sequenceManager.SetInviteCSeq(cseq, method)
	}

	requestURI := d.targetManager.GetTargetURI()
	routes := d.targetManager.GetRouteSet()

	if len(routes) > 0 && !hasLRParam(routes[0]) {
		requestURI = routes[0]
		routes = routes[1:]
	}
	if requestURI == nil {
		requestURI = remoteURI
	}

	from := types.NewAddress("", localURI)
	from.SetParameter("tag", localTag)
	to := types.NewAddress("", remoteURI)
	to.SetParameter("tag", remoteTag)

	var common builder.MessageBuilderCommon = builder.CreateRequest(method, from, to, callID, cseq).
		SetRequestURI(requestURI)

	for _, route := range routes {
		common = common.AddHeader(types.HeaderRoute, formatRouteHeader(route))
	}

	via := types.NewVia("SIP/2.0/UDP", localURI.Host(), localURI.Port())
	via.Branch = transaction.GenerateBranch()
	common = common.AddVia(via)

	contact := types.NewAddress("", localURI)
	common = common.SetContact(contact)

	req, err := common.Build()
	if err != nil {
		// CreateRequest always sets From/To/Call-ID/CSeq and we just added
		// Via above, so the only remaining way Build fails is a nil URI.
		req = types.NewRequest(method, requestURI)
	}

	return req
}

// hasLRParam reports whether uri carries the loose-routing "lr" parameter
// (RFC 3261 §19.1.1).
func hasLRParam(uri types.URI) bool {
	if uri == nil {
		return false
	}
	_, ok := uri.Parameters()["lr"]
	return ok
}
