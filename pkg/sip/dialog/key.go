package dialog

import (
	"crypto/rand"
	"strings"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// GenerateDialogKey builds a DialogKey from a SIP message, orienting the
// local/remote tags according to the UAC/UAS role.
//
// RFC 3261 §12: a dialog is identified by Call-ID plus the local and
// remote From/To tags.
func GenerateDialogKey(msg types.Message, isUAS bool) (DialogKey, error) {
	callID := msg.GetHeader("Call-ID")
	if callID == "" {
		return DialogKey{}, &DialogError{Code: 400, Message: "missing Call-ID header"}
	}

	fromHeader := msg.GetHeader("From")
	if fromHeader == "" {
		return DialogKey{}, &DialogError{Code: 400, Message: "missing From header"}
	}
	fromTag := extractTag(fromHeader)
	if fromTag == "" {
		return DialogKey{}, &DialogError{Code: 400, Message: "missing From tag"}
	}

	toHeader := msg.GetHeader("To")
	if toHeader == "" {
		return DialogKey{}, &DialogError{Code: 400, Message: "missing To header"}
	}
	toTag := extractTag(toHeader)

	var localTag, remoteTag string
	if isUAS {
		localTag = toTag
		remoteTag = fromTag
	} else {
		localTag = fromTag
		remoteTag = toTag
	}

	return DialogKey{
		CallID:    callID,
		LocalTag:  localTag,
		RemoteTag: remoteTag,
	}, nil
}

// GenerateLocalTag returns a cryptographically random tag for a new dialog,
// per RFC 3261's recommendation that tags be unguessable.
func GenerateLocalTag() string {
	return generateRandomString(8)
}

// extractTag extracts the "tag" parameter value from a From/To header of
// the form `"Display Name" <sip:user@host>;tag=value`.
func extractTag(header string) string {
	idx := findParameter(header, "tag")
	if idx == -1 {
		return ""
	}

	start := idx + len("tag=")
	end := start
	for end < len(header) && header[end] != ';' && header[end] != ' ' {
		end++
	}

	return header[start:end]
}

// findParameter returns the position of a `;param=` or leading `param=`
// occurrence in a header value, or -1 if absent.
func findParameter(header, param string) int {
	paramWithEquals := param + "="
	idx := 0
	for idx < len(header) {
		pos := strings.Index(header[idx:], paramWithEquals)
		if pos == -1 {
			return -1
		}
		idx += pos
		if idx == 0 || header[idx-1] == ';' || header[idx-1] == ' ' {
			return idx
		}
		idx++
	}
	return -1
}

const tagCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateRandomString returns a crypto/rand-backed random string of the
// given length drawn from tagCharset.
func generateRandomString(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	result := make([]byte, length)
	for i, b := range buf {
		result[i] = tagCharset[int(b)%len(tagCharset)]
	}
	return string(result)
}

// DialogError is a dialog-layer error carrying the SIP status code it
// should be reported back to the peer as.
type DialogError struct {
	Code    int
	Message string
}

func (e *DialogError) Error() string {
	return e.Message
}
