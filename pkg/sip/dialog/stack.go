package dialog

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/arzzra/voipcore/pkg/sip/core/builder"
	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
	"github.com/arzzra/voipcore/pkg/sip/transaction/creator"
	"github.com/arzzra/voipcore/pkg/sip/transport"
)

// Stack is the concrete IStack implementation. It owns the transport and
// transaction managers and turns transaction-layer events into dialog
// creation, routing and lifecycle transitions.
type Stack struct {
	transportManager transport.TransportManager
	txManager        *transaction.Manager

	dialogs *DialogManager

	// pendingTx maps a client transaction's key to the dialog that
	// originated it, so an incoming response can be routed back without
	// the dialog itself depending on the transaction manager directly.
	pendingMu sync.Mutex
	pendingTx map[transaction.TransactionKey]DialogKey

	handlersMutex         sync.RWMutex
	incomingDialogHandler func(IDialog)
	requestHandlers       map[string]RequestHandler

	runMutex sync.RWMutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc

	localAddress string
	localPort    int
}

// NewStack creates a stack bound to transportManager, advertising
// localAddress:localPort in its own From/Contact URIs.
func NewStack(transportManager transport.TransportManager, localAddress string, localPort int) *Stack {
	return &Stack{
		transportManager: transportManager,
		dialogs:          NewDialogManager(),
		pendingTx:        make(map[transaction.TransactionKey]DialogKey),
		requestHandlers:  make(map[string]RequestHandler),
		localAddress:     localAddress,
		localPort:        localPort,
	}
}

// Start wires the transaction manager to the transport and begins
// listening.
func (s *Stack) Start(ctx context.Context) error {
	s.runMutex.Lock()
	if s.running {
		s.runMutex.Unlock()
		return fmt.Errorf("stack already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.runMutex.Unlock()

	s.txManager = transaction.NewManagerWithCreator(s.transportManager, creator.NewDefaultCreator())
	s.txManager.SetEventSink(transaction.EventSinkFunc(s.handleTransactionEvent))

	return s.transportManager.Start()
}

// Shutdown sends BYE to every established dialog, then tears down the
// transaction and transport layers.
func (s *Stack) Shutdown(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.running {
		s.runMutex.Unlock()
		return fmt.Errorf("stack not running")
	}
	s.running = false
	s.runMutex.Unlock()

	for _, d := range s.dialogs.GetAll() {
		if d.State() == DialogStateEstablished {
			if err := d.Bye(ctx, "stack shutdown"); err != nil {
				fmt.Printf("failed to send BYE for dialog %s: %v\n", d.Key(), err)
			}
		}
		_ = d.Close()
	}

	if s.txManager != nil {
		if err := s.txManager.Close(); err != nil {
			return fmt.Errorf("failed to close transaction manager: %w", err)
		}
	}

	if err := s.transportManager.Stop(); err != nil {
		return fmt.Errorf("failed to stop transport manager: %w", err)
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.dialogs.Clear()

	return nil
}

// NewInvite originates an outgoing INVITE and its UAC dialog.
func (s *Stack) NewInvite(ctx context.Context, target URI, opts InviteOpts) (IDialog, error) {
	s.runMutex.RLock()
	if !s.running {
		s.runMutex.RUnlock()
		return nil, fmt.Errorf("stack not running")
	}
	s.runMutex.RUnlock()

	callID := GenerateCallID()
	fromTag := GenerateLocalTag()

	fromURI := types.NewSipURI("", s.localAddress)
	fromURI.SetPort(s.localPort)

	fromAddr := types.NewAddress("", fromURI)
	fromAddr.SetParameter("tag", fromTag)
	toAddr := types.NewAddress("", target)

	var common builder.MessageBuilderCommon = builder.CreateRequest(types.MethodINVITE, fromAddr, toAddr, callID, 1)

	contactAddr := types.NewAddress("", fromURI)
	common = common.SetContact(contactAddr)

	via := types.NewVia("SIP/2.0/UDP", fromURI.Host(), fromURI.Port())
	via.Branch = transaction.GenerateBranch()
	common = common.AddVia(via)

	invite, err := common.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build INVITE: %w", err)
	}

	if opts != nil {
		if req, ok := invite.(*types.Request); ok {
			opts(req)
		}
	}

	dialogKey := DialogKey{
		CallID:    callID,
		LocalTag:  fromTag,
		RemoteTag: "", // filled in once the peer's tag arrives
	}
	dlg := NewDialog(dialogKey, true, fromURI, target, s.dialogTxManager(dialogKey))

	tx, err := s.txManager.CreateClientTransaction(invite)
	if err != nil {
		return nil, fmt.Errorf("failed to create INVITE transaction: %w", err)
	}
	dlg.SetInviteTransaction(tx)
	s.registerPending(tx.Key(), dialogKey)

	_ = dlg.stateMachine.ProcessRequest(types.MethodINVITE, 0)

	if err := s.dialogs.Add(dlg); err != nil {
		return nil, fmt.Errorf("failed to add dialog: %w", err)
	}

	return dlg, nil
}

// DialogByKey looks up an existing dialog.
func (s *Stack) DialogByKey(key DialogKey) (IDialog, bool) {
	d, ok := s.dialogs.Get(key)
	if !ok {
		return nil, false
	}
	return d, true
}

// OnIncomingDialog registers the handler invoked for each new incoming
// INVITE's dialog.
func (s *Stack) OnIncomingDialog(handler func(IDialog)) {
	s.handlersMutex.Lock()
	defer s.handlersMutex.Unlock()
	s.incomingDialogHandler = handler
}

// OnRequest registers a handler for out-of-dialog requests (OPTIONS,
// MESSAGE, ...).
func (s *Stack) OnRequest(method string, handler RequestHandler) {
	s.handlersMutex.Lock()
	defer s.handlersMutex.Unlock()
	s.requestHandlers[method] = handler
}

// dialogTxAdapter lets a Dialog originate client transactions through the
// stack's manager while letting the stack keep track of which dialog
// owns the resulting transaction key.
type dialogTxAdapter struct {
	stack *Stack
	key   DialogKey
}

func (a *dialogTxAdapter) CreateClientTransaction(req types.Message) (transaction.Transaction, error) {
	tx, err := a.stack.txManager.CreateClientTransaction(req)
	if err != nil {
		return nil, err
	}
	a.stack.registerPending(tx.Key(), a.key)
	return tx, nil
}

func (s *Stack) dialogTxManager(key DialogKey) DialogTransactionManager {
	return &dialogTxAdapter{stack: s, key: key}
}

func (s *Stack) registerPending(key transaction.TransactionKey, dlgKey DialogKey) {
	s.pendingMu.Lock()
	s.pendingTx[key] = dlgKey
	s.pendingMu.Unlock()
}

func (s *Stack) rekeyPending(oldKey, newKey DialogKey) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for k, v := range s.pendingTx {
		if v == oldKey {
			s.pendingTx[k] = newKey
		}
	}
}

// handleTransactionEvent is the transaction manager's EventSink: it turns
// transaction-layer events into dialog actions.
func (s *Stack) handleTransactionEvent(ev transaction.Event) {
	switch ev.Kind {
	case transaction.EventNewRequest:
		s.handleNewRequest(ev)
	case transaction.EventProvisionalResponse, transaction.EventSuccessResponse, transaction.EventFailureResponse:
		s.handleClientResponse(ev)
	}
}

// handleNewRequest dispatches an inbound request: in-dialog requests go
// to their dialog, a new INVITE starts a UAS dialog, everything else
// goes to a registered out-of-dialog handler.
func (s *Stack) handleNewRequest(ev transaction.Event) {
	req := ev.Message
	tx, ok := s.txManager.FindTransaction(ev.Key)
	if !ok {
		return
	}

	if extractTag(req.GetHeader(types.HeaderTo)) != "" {
		if key, err := GenerateDialogKey(req, true); err == nil {
			if dlg, found := s.dialogs.Get(key); found {
				s.handleInDialogRequest(tx, dlg, req)
				return
			}
		}
	}

	switch req.Method() {
	case types.MethodINVITE:
		s.handleIncomingInvite(tx, req)
	default:
		s.handlersMutex.RLock()
		handler, ok := s.requestHandlers[req.Method()]
		s.handlersMutex.RUnlock()

		if ok {
			if resp := handler(req); resp != nil {
				_ = tx.SendResponse(resp)
			}
			return
		}

		resp, buildErr := builder.CreateResponse(req, 405, "Method Not Allowed").
			AddHeader("Allow", "INVITE, ACK, BYE, CANCEL, OPTIONS, REFER, NOTIFY").
			Build()
		if buildErr == nil {
			_ = tx.SendResponse(resp)
		}
	}
}

// handleInDialogRequest hands req to its dialog and answers with the
// dialog's verdict: 200 OK on success (NOTIFY additionally updates any
// REFER subscription it carries), 500 on a processing error.
func (s *Stack) handleInDialogRequest(tx transaction.Transaction, dlg *Dialog, req types.Message) {
	if err := dlg.ProcessRequest(req); err != nil {
		resp, buildErr := builder.CreateResponse(req, 500, "Internal Server Error").Build()
		if buildErr == nil {
			_ = tx.SendResponse(resp)
		}
		return
	}

	if req.Method() == "NOTIFY" {
		_ = dlg.ProcessNotify(req)
	}

	resp, err := builder.CreateResponse(req, 200, "OK").Build()
	if err == nil {
		_ = tx.SendResponse(resp)
	}
}

// handleIncomingInvite answers a new out-of-dialog INVITE with 100
// Trying, creates its UAS dialog, and hands it to the incoming-dialog
// handler.
func (s *Stack) handleIncomingInvite(tx transaction.Transaction, invite types.Message) {
	trying, err := builder.CreateResponse(invite, 100, "Trying").Build()
	if err == nil {
		_ = tx.SendResponse(trying)
	}

	callID := invite.GetHeader(types.HeaderCallID)
	fromTag := extractTag(invite.GetHeader(types.HeaderFrom))
	toTag := GenerateLocalTag()

	dialogKey := DialogKey{
		CallID:    callID,
		LocalTag:  toTag,   // UAS local tag is the To-tag it generates
		RemoteTag: fromTag, // UAS remote tag is the peer's From-tag
	}

	fromURI, _ := types.ParseURI(extractURIFromHeader(invite.GetHeader(types.HeaderFrom)))
	toURI, _ := types.ParseURI(extractURIFromHeader(invite.GetHeader(types.HeaderTo)))

	// For UAS: localURI = To, remoteURI = From.
	dlg := NewDialog(dialogKey, false, toURI, fromURI, s.dialogTxManager(dialogKey))
	dlg.SetInviteTransaction(tx)

	if contact := invite.GetHeader(types.HeaderContact); contact != "" {
		if contactURI, err := parseContactURI(contact); err == nil {
			dlg.targetManager.mu.Lock()
			dlg.targetManager.targetURI = contactURI
			dlg.targetManager.mu.Unlock()
		}
	}

	if cseqHeader := invite.GetHeader(types.HeaderCSeq); cseqHeader != "" {
		if cseq, err := types.ParseCSeq(cseqHeader); err == nil {
			dlg.sequenceManager.ValidateRemoteCSeq(cseq.Sequence, cseq.Method)
			dlg.sequenceManager.SetInviteCSeq(cseq.Sequence, cseq.Method)
		}
	}

	_ = dlg.stateMachine.ProcessRequest(types.MethodINVITE, 0)

	if err := s.dialogs.Add(dlg); err != nil {
		fmt.Printf("failed to add dialog: %v\n", err)
		return
	}

	s.handlersMutex.RLock()
	handler := s.incomingDialogHandler
	s.handlersMutex.RUnlock()

	if handler != nil {
		handler(dlg)
	}
}

// handleClientResponse routes a response event to the dialog that
// originated its request, special-casing the INVITE transaction that
// establishes (or fails to establish) the dialog itself.
func (s *Stack) handleClientResponse(ev transaction.Event) {
	s.pendingMu.Lock()
	dlgKey, ok := s.pendingTx[ev.Key]
	s.pendingMu.Unlock()
	if !ok {
		return
	}

	dlg, found := s.dialogs.Get(dlgKey)
	if !found {
		return
	}

	resp := ev.Message
	if resp == nil {
		return
	}

	cseq, err := types.ParseCSeq(resp.GetHeader(types.HeaderCSeq))
	if err != nil {
		return
	}

	if cseq.Method == types.MethodINVITE {
		s.handleInviteResponse(dlg, resp)
		return
	}

	_ = dlg.ProcessResponse(resp, cseq.Method)
}

// handleInviteResponse drives the UAC side of INVITE establishment: it
// captures the peer's tag on the first response, refreshes the route
// set, acks 2xx responses directly (RFC 3261 §13.2.2.4: the ACK for a
// 2xx is sent by the TU, not the INVITE client transaction), and drops
// the dialog on a final failure.
func (s *Stack) handleInviteResponse(dlg *Dialog, resp types.Message) {
	statusCode := resp.StatusCode()

	if dlg.isUAC {
		dlg.mu.Lock()
		needsTag := dlg.key.RemoteTag == ""
		oldKey := dlg.key
		if needsTag {
			if toTag := extractTag(resp.GetHeader(types.HeaderTo)); toTag != "" {
				dlg.key.RemoteTag = toTag
			}
		}
		newKey := dlg.key
		dlg.mu.Unlock()

		if needsTag && newKey != oldKey {
			if err := s.dialogs.UpdateKey(oldKey, newKey); err == nil {
				s.rekeyPending(oldKey, newKey)
			}
		}
	}

	_ = dlg.targetManager.UpdateFromResponse(resp, types.MethodINVITE)
	_ = dlg.stateMachine.ProcessResponse(types.MethodINVITE, statusCode)

	switch {
	case statusCode >= 200 && statusCode < 300:
		ack := dlg.createRequest(types.MethodACK)
		if target := dlg.targetManager.GetTargetURI(); target != nil {
			addr := fmt.Sprintf("%s:%d", target.Host(), target.Port())
			if err := s.transportManager.Send(ack, addr); err != nil {
				fmt.Printf("failed to send ACK: %v\n", err)
			}
		}

	case statusCode >= 300:
		s.dialogs.Remove(dlg.Key())
	}
}

// extractURIFromHeader pulls the URI out of a From/To header, preferring
// the <...> form and falling back to trimming trailing parameters.
func extractURIFromHeader(header string) string {
	start := -1
	end := -1

	for i, ch := range header {
		if ch == '<' {
			start = i + 1
		} else if ch == '>' && start != -1 {
			end = i
			break
		}
	}

	if start != -1 && end != -1 {
		return header[start:end]
	}

	if idx := strings.Index(header, ";"); idx != -1 {
		return strings.TrimSpace(header[:idx])
	}

	return strings.TrimSpace(header)
}

// GenerateCallID returns a unique Call-ID value.
func GenerateCallID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%d.%d@%s", time.Now().UnixNano(), n.Int64(), "localhost")
}
