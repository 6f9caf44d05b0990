// Package creator provides the default TransactionCreator wiring the
// concrete client/server state machines into the transaction manager.
package creator

import (
	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
	"github.com/arzzra/voipcore/pkg/sip/transaction/client"
	"github.com/arzzra/voipcore/pkg/sip/transaction/server"
)

// DefaultCreator implements transaction.TransactionCreator using the
// package's built-in state machines.
type DefaultCreator struct{}

// NewDefaultCreator returns the default transaction factory.
func NewDefaultCreator() transaction.TransactionCreator {
	return &DefaultCreator{}
}

func (c *DefaultCreator) CreateClientInviteTransaction(
	id string, key transaction.TransactionKey, request types.Message,
	tr transaction.Transport, timers transaction.TransactionTimers, sink transaction.EventSink,
) transaction.Transaction {
	return client.NewInviteTransaction(id, key, request, tr, timers, sink)
}

func (c *DefaultCreator) CreateClientNonInviteTransaction(
	id string, key transaction.TransactionKey, request types.Message,
	tr transaction.Transport, timers transaction.TransactionTimers, sink transaction.EventSink,
) transaction.Transaction {
	return client.NewNonInviteTransaction(id, key, transaction.NonInviteClient, request, tr, timers, sink)
}

func (c *DefaultCreator) CreateClientUpdateTransaction(
	id string, key transaction.TransactionKey, request types.Message,
	tr transaction.Transport, timers transaction.TransactionTimers, sink transaction.EventSink,
) transaction.Transaction {
	return client.NewUpdateTransaction(id, key, request, tr, timers, sink)
}

func (c *DefaultCreator) CreateServerInviteTransaction(
	id string, key transaction.TransactionKey, request types.Message,
	tr transaction.Transport, timers transaction.TransactionTimers, sink transaction.EventSink,
) transaction.Transaction {
	return server.NewInviteTransaction(id, key, request, tr, timers, sink)
}

func (c *DefaultCreator) CreateServerNonInviteTransaction(
	id string, key transaction.TransactionKey, request types.Message,
	tr transaction.Transport, timers transaction.TransactionTimers, sink transaction.EventSink,
) transaction.Transaction {
	return server.NewNonInviteTransaction(id, key, transaction.NonInviteServer, request, tr, timers, sink)
}

func (c *DefaultCreator) CreateServerUpdateTransaction(
	id string, key transaction.TransactionKey, request types.Message,
	tr transaction.Transport, timers transaction.TransactionTimers, sink transaction.EventSink,
) transaction.Transaction {
	return server.NewUpdateTransaction(id, key, request, tr, timers, sink)
}
