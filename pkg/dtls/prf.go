package dtls

import (
	"crypto/hmac"
	"crypto/sha256"
)

// pHash implements RFC 5246 §5's P_hash(secret, seed) expansion
// function using HMAC-SHA256, producing exactly n bytes.
func pHash(secret, seed []byte, n int) []byte {
	out := make([]byte, 0, n)
	a := hmacSum(secret, seed)
	for len(out) < n {
		out = append(out, hmacSum(secret, append(append([]byte(nil), a...), seed...))...)
		a = hmacSum(secret, a)
	}
	return out[:n]
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// prf is the TLS 1.2 PRF (RFC 5246 §5): PRF(secret, label, seed) =
// P_hash(secret, label ‖ seed).
func prf(secret []byte, label string, seed []byte, n int) []byte {
	full := make([]byte, 0, len(label)+len(seed))
	full = append(full, []byte(label)...)
	full = append(full, seed...)
	return pHash(secret, full, n)
}

// deriveMasterSecret computes the 48-byte master secret from the ECDHE
// pre-master secret and both hello randoms, per RFC 5246 §8.1.
func deriveMasterSecret(preMasterSecret []byte, clientRandom, serverRandom [32]byte) [48]byte {
	seed := make([]byte, 0, 64)
	seed = append(seed, clientRandom[:]...)
	seed = append(seed, serverRandom[:]...)
	out := prf(preMasterSecret, "master secret", seed, 48)
	var ms [48]byte
	copy(ms[:], out)
	return ms
}

// srtpKeyingMaterialLen is 2×(16-byte AES-128 key + 14-byte salt) for
// SRTP_AES128_CM_HMAC_SHA1_* profiles: client_write_key ‖
// server_write_key ‖ client_write_salt ‖ server_write_salt.
const srtpKeyingMaterialLen = 2*16 + 2*14

// exportSRTPKeyingMaterial derives SRTP keying material from the
// master secret per RFC 5764 §4.2, using the TLS exporter construction
// with label "EXTRACTOR-dtls_srtp" and seed client_random ‖ server_random.
func exportSRTPKeyingMaterial(masterSecret [48]byte, clientRandom, serverRandom [32]byte) []byte {
	seed := make([]byte, 0, 64)
	seed = append(seed, clientRandom[:]...)
	seed = append(seed, serverRandom[:]...)
	return prf(masterSecret[:], "EXTRACTOR-dtls_srtp", seed, srtpKeyingMaterialLen)
}
