package dtls

import (
	"encoding/binary"
)

// handshakeHeaderLen is msg_type(1) ‖ length(3) ‖ message_seq(2) ‖
// fragment_offset(3) ‖ fragment_length(3), per RFC 6347 §4.2.2. This
// module never fragments a handshake message across records, so
// fragment_offset is always 0 and fragment_length always equals length.
const handshakeHeaderLen = 12

func marshalHandshakeHeader(msgType HandshakeType, bodyLen int, seq uint16) []byte {
	h := make([]byte, handshakeHeaderLen)
	h[0] = byte(msgType)
	putUint24(h[1:4], uint32(bodyLen))
	binary.BigEndian.PutUint16(h[4:6], seq)
	putUint24(h[6:9], 0)
	putUint24(h[9:12], uint32(bodyLen))
	return h
}

type handshakeHeader struct {
	MsgType     HandshakeType
	Length      uint32
	MessageSeq  uint16
	FragmentOff uint32
	FragmentLen uint32
}

func parseHandshakeHeader(b []byte) (handshakeHeader, []byte, error) {
	if len(b) < handshakeHeaderLen {
		return handshakeHeader{}, nil, parseErrf("handshake header too short")
	}
	h := handshakeHeader{
		MsgType:     HandshakeType(b[0]),
		Length:      getUint24(b[1:4]),
		MessageSeq:  binary.BigEndian.Uint16(b[4:6]),
		FragmentOff: getUint24(b[6:9]),
		FragmentLen: getUint24(b[9:12]),
	}
	rest := b[handshakeHeaderLen:]
	if uint32(len(rest)) < h.Length {
		return handshakeHeader{}, nil, parseErrf("handshake body shorter than declared length")
	}
	return h, rest[:h.Length], nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func getUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// --- HelloVerifyRequest: version(2) ‖ cookie_length(1) ‖ cookie ---

func marshalHelloVerifyRequest(cookie []byte) []byte {
	body := make([]byte, 0, 3+len(cookie))
	body = append(body, dtlsVersion[:]...)
	body = append(body, byte(len(cookie)))
	body = append(body, cookie...)
	return body
}

func parseHelloVerifyRequest(body []byte) (cookie []byte, err error) {
	if len(body) < 3 {
		return nil, parseErrf("hello_verify_request too short")
	}
	cookieLen := int(body[2])
	if len(body) < 3+cookieLen {
		return nil, parseErrf("hello_verify_request cookie truncated")
	}
	return append([]byte(nil), body[3:3+cookieLen]...), nil
}

// --- ClientHello ---
//
// client_version(2) ‖ random(32) ‖ session_id_len(1)+session_id ‖
// cookie_len(1)+cookie ‖ cipher_suites_len(2)+cipher_suites(2 each) ‖
// compression_methods_len(1)+methods ‖ extensions_len(2)+extensions.
// The cookie field is the DTLS addition RFC 6347 inserts after the
// session id.

type clientHelloMsg struct {
	Random       [32]byte
	SessionID    []byte
	Cookie       []byte
	CipherSuites []CipherSuite
	SRTPProfiles []SRTPProfile
}

func marshalClientHello(m clientHelloMsg) []byte {
	body := make([]byte, 0, 128)
	body = append(body, dtlsVersion[:]...)
	body = append(body, m.Random[:]...)
	body = append(body, byte(len(m.SessionID)))
	body = append(body, m.SessionID...)
	body = append(body, byte(len(m.Cookie)))
	body = append(body, m.Cookie...)

	suites := make([]byte, 2*len(m.CipherSuites))
	for i, cs := range m.CipherSuites {
		binary.BigEndian.PutUint16(suites[2*i:], uint16(cs))
	}
	body = append(body, byte(len(suites)>>8), byte(len(suites)))
	body = append(body, suites...)

	body = append(body, 1, 0x00) // compression_methods: null only

	ext := marshalUseSRTPExtension(m.SRTPProfiles)
	body = append(body, byte(len(ext)>>8), byte(len(ext)))
	body = append(body, ext...)
	return body
}

func parseClientHello(body []byte) (*clientHelloMsg, error) {
	if len(body) < 2+32+1 {
		return nil, parseErrf("client_hello too short")
	}
	off := 2
	var m clientHelloMsg
	copy(m.Random[:], body[off:off+32])
	off += 32

	sidLen := int(body[off])
	off++
	if len(body) < off+sidLen+1 {
		return nil, parseErrf("client_hello session_id truncated")
	}
	m.SessionID = append([]byte(nil), body[off:off+sidLen]...)
	off += sidLen

	cookieLen := int(body[off])
	off++
	if len(body) < off+cookieLen+2 {
		return nil, parseErrf("client_hello cookie truncated")
	}
	m.Cookie = append([]byte(nil), body[off:off+cookieLen]...)
	off += cookieLen

	suitesLen := int(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2
	if len(body) < off+suitesLen || suitesLen%2 != 0 {
		return nil, parseErrf("client_hello cipher_suites truncated")
	}
	for i := 0; i < suitesLen; i += 2 {
		m.CipherSuites = append(m.CipherSuites, CipherSuite(binary.BigEndian.Uint16(body[off+i:off+i+2])))
	}
	off += suitesLen

	if len(body) < off+1 {
		return nil, parseErrf("client_hello compression_methods truncated")
	}
	compLen := int(body[off])
	off += 1 + compLen
	if len(body) < off+2 {
		// extensions are optional in principle, but this module always
		// sends use_srtp and treats its absence as a protocol error.
		return nil, parseErrf("client_hello missing extensions")
	}

	extLen := int(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2
	if len(body) < off+extLen {
		return nil, parseErrf("client_hello extensions truncated")
	}
	profiles, err := parseUseSRTPExtension(body[off : off+extLen])
	if err != nil {
		return nil, err
	}
	m.SRTPProfiles = profiles
	return &m, nil
}

// --- ServerHello ---
//
// server_version(2) ‖ random(32) ‖ session_id_len(1)+session_id ‖
// cipher_suite(2) ‖ compression_method(1) ‖ extensions_len(2)+extensions.

type serverHelloMsg struct {
	Random      [32]byte
	SessionID   []byte
	CipherSuite CipherSuite
	SRTPProfile SRTPProfile
}

func marshalServerHello(m serverHelloMsg) []byte {
	body := make([]byte, 0, 64)
	body = append(body, dtlsVersion[:]...)
	body = append(body, m.Random[:]...)
	body = append(body, byte(len(m.SessionID)))
	body = append(body, m.SessionID...)
	body = append(body, byte(m.CipherSuite>>8), byte(m.CipherSuite))
	body = append(body, 0x00) // compression: null

	ext := marshalUseSRTPExtension([]SRTPProfile{m.SRTPProfile})
	body = append(body, byte(len(ext)>>8), byte(len(ext)))
	body = append(body, ext...)
	return body
}

func parseServerHello(body []byte) (*serverHelloMsg, error) {
	if len(body) < 2+32+1 {
		return nil, parseErrf("server_hello too short")
	}
	off := 2
	var m serverHelloMsg
	copy(m.Random[:], body[off:off+32])
	off += 32

	sidLen := int(body[off])
	off++
	if len(body) < off+sidLen+3 {
		return nil, parseErrf("server_hello session_id truncated")
	}
	m.SessionID = append([]byte(nil), body[off:off+sidLen]...)
	off += sidLen

	m.CipherSuite = CipherSuite(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2
	off++ // compression method

	if len(body) < off+2 {
		return nil, parseErrf("server_hello missing extensions")
	}
	extLen := int(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2
	if len(body) < off+extLen {
		return nil, parseErrf("server_hello extensions truncated")
	}
	profiles, err := parseUseSRTPExtension(body[off : off+extLen])
	if err != nil {
		return nil, err
	}
	if len(profiles) != 1 {
		return nil, parseErrf("server_hello must select exactly one srtp profile")
	}
	m.SRTPProfile = profiles[0]
	return &m, nil
}

// --- use_srtp extension (RFC 5764 §4.1.1) ---
//
// extension_type(2)=0x000e ‖ extension_data_len(2) ‖
// profiles_len(2)+profiles(2 each) ‖ mki_len(1)+mki.

func marshalUseSRTPExtension(profiles []SRTPProfile) []byte {
	profBytes := make([]byte, 2*len(profiles))
	for i, p := range profiles {
		binary.BigEndian.PutUint16(profBytes[2*i:], uint16(p))
	}
	data := make([]byte, 0, 2+len(profBytes)+1)
	data = append(data, byte(len(profBytes)>>8), byte(len(profBytes)))
	data = append(data, profBytes...)
	data = append(data, 0x00) // empty MKI

	ext := make([]byte, 0, 4+len(data))
	ext = append(ext, byte(useSRTPExtensionType>>8), byte(useSRTPExtensionType))
	ext = append(ext, byte(len(data)>>8), byte(len(data)))
	ext = append(ext, data...)
	return ext
}

func parseUseSRTPExtension(b []byte) ([]SRTPProfile, error) {
	off := 0
	for off+4 <= len(b) {
		extType := binary.BigEndian.Uint16(b[off : off+2])
		extLen := int(binary.BigEndian.Uint16(b[off+2 : off+4]))
		off += 4
		if off+extLen > len(b) {
			return nil, parseErrf("extension body truncated")
		}
		data := b[off : off+extLen]
		off += extLen
		if extType != useSRTPExtensionType {
			continue
		}
		if len(data) < 2 {
			return nil, parseErrf("use_srtp extension truncated")
		}
		profLen := int(binary.BigEndian.Uint16(data[0:2]))
		if len(data) < 2+profLen || profLen%2 != 0 {
			return nil, parseErrf("use_srtp profiles truncated")
		}
		var profiles []SRTPProfile
		for i := 0; i < profLen; i += 2 {
			profiles = append(profiles, SRTPProfile(binary.BigEndian.Uint16(data[2+i:2+i+2])))
		}
		return profiles, nil
	}
	return nil, parseErrf("use_srtp extension not present")
}

// --- ServerKeyExchange ---
//
// curve_type(1)=3 ‖ named_curve(2)=23 ‖ public_key_length(1) ‖
// public_key(65 bytes, uncompressed SEC1).

func marshalServerKeyExchange(pub []byte) []byte {
	body := make([]byte, 0, 4+len(pub))
	body = append(body, curveTypeNamed)
	body = append(body, byte(namedCurveP256>>8), byte(namedCurveP256))
	body = append(body, byte(len(pub)))
	body = append(body, pub...)
	return body
}

func parseServerKeyExchange(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, parseErrf("server_key_exchange too short")
	}
	if body[0] != curveTypeNamed {
		return nil, parseErrf("server_key_exchange: unsupported curve_type")
	}
	curve := uint16(body[1])<<8 | uint16(body[2])
	if curve != namedCurveP256 {
		return nil, parseErrf("server_key_exchange: unsupported named_curve")
	}
	pubLen := int(body[3])
	if len(body) < 4+pubLen {
		return nil, parseErrf("server_key_exchange public_key truncated")
	}
	return append([]byte(nil), body[4:4+pubLen]...), nil
}

// --- ClientKeyExchange ---
//
// public_key_length(1) ‖ public_key(65 bytes).

func marshalClientKeyExchange(pub []byte) []byte {
	body := make([]byte, 0, 1+len(pub))
	body = append(body, byte(len(pub)))
	body = append(body, pub...)
	return body
}

func parseClientKeyExchange(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, parseErrf("client_key_exchange too short")
	}
	pubLen := int(body[0])
	if len(body) < 1+pubLen {
		return nil, parseErrf("client_key_exchange public_key truncated")
	}
	return append([]byte(nil), body[1:1+pubLen]...), nil
}

// --- Finished (RFC 5246 §7.4.9) ---
//
// body is exactly verify_data, 12 bytes in this module's truncated form.

const finishedVerifyDataLen = 12

func marshalFinished(verifyData []byte) []byte {
	return append([]byte(nil), verifyData...)
}

func parseFinished(body []byte) ([]byte, error) {
	if len(body) != finishedVerifyDataLen {
		return nil, parseErrf("finished: unexpected verify_data length")
	}
	return append([]byte(nil), body...), nil
}

// buildMessage serializes one handshake message (header + body); the
// full return value is both what gets sent on the wire and what feeds
// the Finished-message transcript hash.
func buildMessage(msgType HandshakeType, body []byte, seq uint16) []byte {
	return append(marshalHandshakeHeader(msgType, len(body), seq), body...)
}

// splitMessages parses every handshake message out of a flight
// datagram that may carry more than one message back-to-back.
func splitMessages(b []byte) ([]handshakeHeader, [][]byte, error) {
	var headers []handshakeHeader
	var bodies [][]byte
	for len(b) > 0 {
		h, body, err := parseHandshakeHeader(b)
		if err != nil {
			return nil, nil, err
		}
		headers = append(headers, h)
		bodies = append(bodies, body)
		b = b[handshakeHeaderLen+len(body):]
	}
	return headers, bodies, nil
}
