package server

import (
	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// NewUpdateTransaction creates the RFC 3311 UPDATE server transaction.
// UPDATE follows the non-INVITE state diagram (RFC 3311 §5.1).
func NewUpdateTransaction(
	id string,
	key transaction.TransactionKey,
	request types.Message,
	tr transaction.Transport,
	timers transaction.TransactionTimers,
	sink transaction.EventSink,
) *NonInviteTransaction {
	return NewNonInviteTransaction(id, key, transaction.UpdateServer, request, tr, timers, sink)
}
