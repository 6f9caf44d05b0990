// Package ids generates the identifiers shared by the transaction,
// dialog and session layers, grounded on the teacher's
// dialog.IDGeneratorPool but backed by google/uuid instead of a
// hand-rolled crypto/rand pool.
package ids

import "github.com/google/uuid"

// NewTransactionID returns a unique transaction identifier.
func NewTransactionID() string {
	return uuid.NewString()
}

// NewDialogID returns a unique dialog identifier.
func NewDialogID() string {
	return uuid.NewString()
}

// NewSessionID returns a unique session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewAgentID returns a unique agent identifier for the orchestrator.
func NewAgentID() string {
	return uuid.NewString()
}
