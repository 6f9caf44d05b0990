package dtls

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
)

const cookieLen = 16

// cookieSecret generates and validates HelloVerifyRequest cookies. A
// cookie is HMAC-SHA256(secret, peerAddr ‖ clientRandom) truncated to
// 16 bytes, binding it to the address it was issued to (testable
// property #7) without requiring per-client server-side state. One
// cookieSecret is meant to be shared across every association a
// listener accepts.
type cookieSecret struct {
	key [32]byte
}

// NewCookieSecret generates a fresh CSPRNG-keyed cookie secret for a
// DTLS listener.
func NewCookieSecret() (*cookieSecret, error) {
	var s cookieSecret
	if _, err := rand.Read(s.key[:]); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *cookieSecret) generate(peerAddr string, clientRandom [32]byte) []byte {
	mac := hmac.New(sha256.New, s.key[:])
	mac.Write([]byte(peerAddr))
	mac.Write(clientRandom[:])
	return mac.Sum(nil)[:cookieLen]
}

// valid reports whether cookie was the one this secret would have
// issued to peerAddr for clientRandom. Constant-time comparison avoids
// leaking cookie material through timing.
func (s *cookieSecret) valid(peerAddr string, clientRandom [32]byte, cookie []byte) bool {
	want := s.generate(peerAddr, clientRandom)
	return len(cookie) == len(want) && subtle.ConstantTimeCompare(cookie, want) == 1
}
