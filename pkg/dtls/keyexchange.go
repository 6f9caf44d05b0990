package dtls

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// newRandom builds a DTLS hello random per RFC 5246 §7.4.1.2: a
// 4-byte big-endian Unix timestamp followed by 28 CSPRNG bytes.
func newRandom() ([32]byte, error) {
	var r [32]byte
	binary.BigEndian.PutUint32(r[0:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(r[4:]); err != nil {
		return r, err
	}
	return r, nil
}

// generateSessionID returns an opaque, unused session id; this module
// never resumes sessions, so a fixed-length random value is enough to
// satisfy the wire format.
func generateSessionID() ([]byte, error) {
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return id, nil
}

// ecdheKeyPair is a P-256 ephemeral keypair. The peer's encoded public
// key is not stored here; it is passed to sharedSecret.
type ecdheKeyPair struct {
	priv *ecdh.PrivateKey
}

func generateECDHEKeyPair() (*ecdheKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &ecdheKeyPair{priv: priv}, nil
}

// publicKeyBytes returns the uncompressed SEC1 encoding (65 bytes for
// P-256) the wire format carries.
func (k *ecdheKeyPair) publicKeyBytes() []byte {
	return k.priv.PublicKey().Bytes()
}

// sharedSecret computes the ECDH shared secret with a peer's encoded
// public key: the x-coordinate of the scalar multiplication, as a
// 32-byte big-endian value — exactly what crypto/ecdh.ECDH returns for
// P-256.
func (k *ecdheKeyPair) sharedSecret(peerPubKey []byte) ([]byte, error) {
	if len(peerPubKey) != ecPublicKeyLen {
		return nil, fmt.Errorf("dtls: peer public key must be %d bytes, got %d", ecPublicKeyLen, len(peerPubKey))
	}
	peerPub, err := ecdh.P256().NewPublicKey(peerPubKey)
	if err != nil {
		return nil, fmt.Errorf("dtls: invalid peer public key: %w", err)
	}
	secret, err := k.priv.ECDH(peerPub)
	if err != nil {
		return nil, err
	}
	return secret, nil
}
