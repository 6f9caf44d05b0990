package dialog

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
)

// SequenceManager tracks the CSeq numbers for one side of a dialog.
//
// RFC 3261 §8.1.1.5:
//   - CSeq strictly increases for each new request sent within a dialog.
//   - CSeq carries a number and a method.
//   - ACK for a non-2xx final response reuses the INVITE's CSeq number.
//   - ACK for a 2xx final response reuses the number but with method ACK.
type SequenceManager struct {
	mu           sync.Mutex
	localCSeq    uint32
	remoteCSeq   uint32
	isUAC        bool
	inviteCSeq   uint32
	inviteMethod string
}

// NewSequenceManager creates a CSeq manager. initialLocal should be a
// random starting value (see GenerateInitialCSeq); isUAC marks whether
// this side initiated the dialog.
func NewSequenceManager(initialLocal uint32, isUAC bool) *SequenceManager {
	return &SequenceManager{
		localCSeq: initialLocal,
		isUAC:     isUAC,
	}
}

// NextLocalCSeq returns the next local CSeq number for a new request.
func (sm *SequenceManager) NextLocalCSeq() uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.localCSeq++
	return sm.localCSeq
}

// GetLocalCSeq returns the current local CSeq without incrementing it.
func (sm *SequenceManager) GetLocalCSeq() uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return sm.localCSeq
}

// ValidateRemoteCSeq checks an incoming CSeq against RFC 3261 §12.2.2:
// CSeq must strictly increase, except for retransmissions and ACK.
func (sm *SequenceManager) ValidateRemoteCSeq(cseq uint32, method string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.remoteCSeq == 0 {
		sm.remoteCSeq = cseq
		return true
	}

	if method == "ACK" {
		return cseq == sm.inviteCSeq || cseq == sm.remoteCSeq
	}

	if cseq == sm.remoteCSeq {
		return true
	}

	if cseq > sm.remoteCSeq {
		sm.remoteCSeq = cseq
		return true
	}

	return false
}

// SetInviteCSeq remembers the INVITE's CSeq so ACKs can be matched to it.
func (sm *SequenceManager) SetInviteCSeq(cseq uint32, method string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if method == "INVITE" {
		sm.inviteCSeq = cseq
		sm.inviteMethod = method
	}
}

// GetInviteCSeq returns the stored INVITE CSeq.
func (sm *SequenceManager) GetInviteCSeq() uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return sm.inviteCSeq
}

// ParseCSeq splits a CSeq header value ("1 INVITE") into its number and
// method.
func ParseCSeq(cseqHeader string) (uint32, string, error) {
	spaceIdx := -1
	for i, ch := range cseqHeader {
		if ch == ' ' || ch == '\t' {
			spaceIdx = i
			break
		}
	}

	if spaceIdx == -1 {
		return 0, "", fmt.Errorf("invalid CSeq format: %s", cseqHeader)
	}

	numStr := cseqHeader[:spaceIdx]
	num, err := strconv.ParseUint(numStr, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("invalid CSeq number: %s", numStr)
	}

	methodStart := spaceIdx + 1
	for methodStart < len(cseqHeader) && (cseqHeader[methodStart] == ' ' || cseqHeader[methodStart] == '\t') {
		methodStart++
	}

	if methodStart >= len(cseqHeader) {
		return 0, "", fmt.Errorf("missing method in CSeq: %s", cseqHeader)
	}

	method := cseqHeader[methodStart:]

	methodEnd := len(method)
	for methodEnd > 0 && (method[methodEnd-1] == ' ' || method[methodEnd-1] == '\t') {
		methodEnd--
	}
	method = method[:methodEnd]

	return uint32(num), method, nil
}

// FormatCSeq formats a CSeq header value from a number and method.
func FormatCSeq(cseq uint32, method string) string {
	return fmt.Sprintf("%d %s", cseq, method)
}

// GenerateInitialCSeq returns a cryptographically random initial CSeq,
// per RFC 3261's recommendation against predictable starting values.
func GenerateInitialCSeq() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return binary.BigEndian.Uint32(buf[:]) % 2147483647
}
