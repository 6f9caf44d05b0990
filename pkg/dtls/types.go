// Package dtls implements the DTLS 1.2 handshake subset needed to
// negotiate SRTP keying material (RFC 6347 + RFC 5764): HelloVerifyRequest
// cookies for DoS resistance and ECDHE key exchange on curve P-256. It
// does not implement full RFC 5246 TLS — no certificate-chain
// authentication, no cipher suites beyond the handful a VoIP endpoint
// needs, no record-layer encryption of application data (that is SRTP's
// job once keying material is exported).
package dtls

import (
	"context"
	"time"
)

// HandshakeType mirrors RFC 5246 §7.4 plus the RFC 6347 addition of
// HelloVerifyRequest.
type HandshakeType uint8

const (
	HandshakeClientHello       HandshakeType = 1
	HandshakeServerHello       HandshakeType = 2
	HandshakeHelloVerifyReq    HandshakeType = 3
	HandshakeServerKeyExchange HandshakeType = 12
	HandshakeServerHelloDone   HandshakeType = 14
	HandshakeClientKeyExchange HandshakeType = 16
	HandshakeFinished          HandshakeType = 20
)

// CipherSuite is the set of suites a server may select from, in the
// exact order a client is allowed to express preference.
type CipherSuite uint16

const (
	CipherECDHE_ECDSA_AES128_GCM_SHA256 CipherSuite = 0xC02B
	CipherECDHE_RSA_AES128_GCM_SHA256   CipherSuite = 0xC02F
	CipherECDHE_ECDSA_AES128_SHA        CipherSuite = 0xC009
	CipherECDHE_RSA_AES128_SHA          CipherSuite = 0xC013
	CipherRSA_AES128_SHA                CipherSuite = 0x002F
)

// ServerSupportedCipherSuites is the fixed server-side accept set.
// The server picks the first of these that also appears in the
// client's offer, preserving client preference order.
var ServerSupportedCipherSuites = []CipherSuite{
	CipherECDHE_ECDSA_AES128_GCM_SHA256,
	CipherECDHE_RSA_AES128_GCM_SHA256,
	CipherECDHE_ECDSA_AES128_SHA,
	CipherECDHE_RSA_AES128_SHA,
	CipherRSA_AES128_SHA,
}

// SRTPProfile identifiers per RFC 5764 §4.1.2.
type SRTPProfile uint16

const (
	SRTP_AES128_CM_HMAC_SHA1_80 SRTPProfile = 0x0001
	SRTP_AES128_CM_HMAC_SHA1_32 SRTPProfile = 0x0002
)

// OfferedSRTPProfiles is the profile list this module offers/accepts,
// in preference order: the _80 tag is required, _32 is optional.
var OfferedSRTPProfiles = []SRTPProfile{
	SRTP_AES128_CM_HMAC_SHA1_80,
	SRTP_AES128_CM_HMAC_SHA1_32,
}

const useSRTPExtensionType = 0x000e

// NamedCurve values per RFC 4492; this module only ever negotiates
// secp256r1 (P-256).
const (
	curveTypeNamed  = 3
	namedCurveP256  = 23
	ecPublicKeyLen  = 65 // uncompressed SEC1 point on P-256
)

// dtlsVersion is DTLS 1.2, encoded per RFC 6347 as the one's
// complement of the matching TLS version (0xFEFD).
var dtlsVersion = [2]byte{0xFE, 0xFD}

// State is the association's coarse handshake lifecycle.
type State int

const (
	StateIdle State = iota
	StateHandshaking
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHandshaking:
		return "Handshaking"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Role distinguishes which side of the handshake an association plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Transport is the minimum a DTLS association needs from its
// datagram carrier: read/write one handshake flight's worth of bytes
// at a time, and identify the peer for cookie binding. A real
// implementation adapts this over a UDP socket; tests adapt it over
// channels.
type Transport interface {
	WriteDatagram(ctx context.Context, b []byte) error
	ReadDatagram(ctx context.Context) ([]byte, error)
	RemoteAddr() string
}

// Config holds the retransmission policy shared by client and server
// handshakes (spec §6 DTLS knobs).
type Config struct {
	MaxRetransmissions      int
	InitialHandshakeTimeout time.Duration
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetransmissions:      6,
		InitialHandshakeTimeout: time.Second,
	}
}

// Result is the material a completed handshake exposes. Scrub wipes
// its randoms, master secret and keying material; Role, CipherSuite and
// SRTPProfile are left as they are. ClientHandshake and ServerHandshake
// return a nil Result on failure.
type Result struct {
	Role        Role
	CipherSuite CipherSuite
	SRTPProfile SRTPProfile

	ClientRandom [32]byte
	ServerRandom [32]byte

	MasterSecret [48]byte

	// SRTPKeyingMaterial is the exported keying material per RFC 5764
	// §4.2, ordered client_write_key ‖ server_write_key ‖
	// client_write_salt ‖ server_write_salt.
	SRTPKeyingMaterial []byte
}

// Scrub zeroes every secret-bearing field, for callers to use once a
// completed association's keys are no longer needed. The handshake
// drivers do not call it: a failed handshake returns no Result, and the
// secrets it derived locally are not zeroed before it returns.
func (r *Result) Scrub() {
	if r == nil {
		return
	}
	zero32(&r.ClientRandom)
	zero32(&r.ServerRandom)
	for i := range r.MasterSecret {
		r.MasterSecret[i] = 0
	}
	for i := range r.SRTPKeyingMaterial {
		r.SRTPKeyingMaterial[i] = 0
	}
}

func zero32(b *[32]byte) {
	for i := range b {
		b[i] = 0
	}
}
