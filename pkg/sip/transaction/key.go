package transaction

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// GenerateTransactionKey derives the matching key for msg. Per RFC 3261
// §17.2.3, an ACK request matches against the INVITE server transaction's
// key: its CSeq method is ACK, but for matching purposes the method is
// taken to be INVITE.
func GenerateTransactionKey(msg types.Message, isClient bool) (TransactionKey, error) {
	via := msg.GetHeader("Via")
	if via == "" {
		return TransactionKey{}, fmt.Errorf("missing Via header")
	}

	branch := extractBranch(via)
	if branch == "" {
		return TransactionKey{}, fmt.Errorf("missing branch parameter in Via header")
	}
	if !strings.HasPrefix(branch, "z9hG4bK") {
		return TransactionKey{}, fmt.Errorf("invalid branch parameter: must start with z9hG4bK")
	}

	var method string
	if msg.IsRequest() {
		method = msg.Method()
	} else {
		cseq := msg.GetHeader("CSeq")
		if cseq == "" {
			return TransactionKey{}, fmt.Errorf("missing CSeq header")
		}
		method = extractMethodFromCSeq(cseq)
		if method == "" {
			return TransactionKey{}, fmt.Errorf("invalid CSeq header")
		}
	}

	if method == "ACK" {
		method = "INVITE"
	}

	return TransactionKey{
		Branch: branch,
		Method: method,
		Client: isClient,
	}, nil
}

// GenerateBranch produces a new RFC 3261 §8.1.1.7 compliant Via branch.
func GenerateBranch() string {
	b := make([]byte, 16)
	rand.Read(b)
	return "z9hG4bK" + hex.EncodeToString(b)
}

func extractBranch(via string) string {
	parts := strings.Split(via, ";")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "branch") {
			if idx := strings.Index(part, "="); idx != -1 {
				return strings.TrimSpace(part[idx+1:])
			}
		}
	}
	return ""
}

func extractMethodFromCSeq(cseq string) string {
	parts := strings.Fields(cseq)
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

// Equals reports whether two keys identify the same transaction.
func (k TransactionKey) Equals(other TransactionKey) bool {
	return k.Branch == other.Branch &&
		k.Method == other.Method &&
		k.Client == other.Client
}

// ValidateTransactionKey rejects keys that cannot have been produced by
// GenerateTransactionKey.
func ValidateTransactionKey(key TransactionKey) error {
	if key.Branch == "" {
		return fmt.Errorf("empty branch")
	}
	if !strings.HasPrefix(key.Branch, "z9hG4bK") {
		return fmt.Errorf("invalid branch: must start with z9hG4bK")
	}
	if key.Method == "" {
		return fmt.Errorf("empty method")
	}
	return nil
}

// MatchingKey builds the key used to look up the transaction that msg
// belongs to: requests look up a server transaction, responses (and the
// CANCEL/ACK requests they accompany) look up a client one, except ACK
// which always looks up a server transaction it is acknowledging directly.
func MatchingKey(msg types.Message) (TransactionKey, error) {
	if msg.IsRequest() {
		if msg.Method() == "ACK" {
			return GenerateTransactionKey(msg, false)
		}
		return GenerateTransactionKey(msg, false)
	}
	return GenerateTransactionKey(msg, true)
}
