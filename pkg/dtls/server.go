package dtls

import (
	"bytes"
	"context"
)

// ServerConfig parameterizes a server handshake.
type ServerConfig struct {
	Config
}

// DefaultServerConfig returns the documented retransmission defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Config: DefaultConfig()}
}

// ServerHandshake drives the server side of the handshake flow
// documented in spec §4.4.2 over t. secret issues and validates
// HelloVerifyRequest cookies bound to t.RemoteAddr(), so one
// cookieSecret can (and should) be shared across every association a
// listener accepts.
func ServerHandshake(ctx context.Context, t Transport, secret *cookieSecret, cfg ServerConfig) (*Result, error) {
	maxAttempts := cfg.MaxRetransmissions
	if maxAttempts <= 0 {
		maxAttempts = 6
	}

	var clientHelloFlight []byte
	var ch *clientHelloMsg

	for attempt := 0; ; attempt++ {
		if attempt > 2*maxAttempts {
			return nil, failf("too many retries awaiting cookie-bearing client_hello", nil)
		}
		datagram, err := t.ReadDatagram(ctx)
		if err != nil {
			return nil, failf("transport read failed", err)
		}
		headers, bodies, err := splitMessages(datagram)
		if err != nil || len(headers) != 1 || headers[0].MsgType != HandshakeClientHello {
			continue
		}
		parsed, err := parseClientHello(bodies[0])
		if err != nil {
			return nil, failf("malformed client_hello", err)
		}

		if len(parsed.Cookie) == 0 {
			cookie := secret.generate(t.RemoteAddr(), parsed.Random)
			hvr := buildMessage(HandshakeHelloVerifyReq, marshalHelloVerifyRequest(cookie), 1)
			if err := t.WriteDatagram(ctx, hvr); err != nil {
				return nil, failf("transport write failed", err)
			}
			continue
		}

		if !secret.valid(t.RemoteAddr(), parsed.Random, parsed.Cookie) {
			return nil, failf("cookie mismatch", nil)
		}
		clientHelloFlight = datagram
		ch = parsed
		break
	}

	cipherSuite, ok := selectCipherSuite(ch.CipherSuites)
	if !ok {
		return nil, failf("no mutually supported cipher suite", nil)
	}
	srtpProfile, ok := selectSRTPProfile(ch.SRTPProfiles)
	if !ok {
		return nil, failf("no mutually supported srtp profile", nil)
	}

	serverRandom, err := newRandom()
	if err != nil {
		return nil, failf("random generation failed", err)
	}
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, failf("random generation failed", err)
	}

	serverHelloBody := marshalServerHello(serverHelloMsg{
		Random:      serverRandom,
		SessionID:   sessionID,
		CipherSuite: cipherSuite,
		SRTPProfile: srtpProfile,
	})
	serverHelloFlight := buildMessage(HandshakeServerHello, serverHelloBody, 2)

	kp, err := generateECDHEKeyPair()
	if err != nil {
		return nil, failf("key generation failed", err)
	}
	skeFlight := buildMessage(HandshakeServerKeyExchange, marshalServerKeyExchange(kp.publicKeyBytes()), 3)

	flight2 := append(append([]byte(nil), serverHelloFlight...), skeFlight...)

	var transcript bytes.Buffer
	transcript.Write(clientHelloFlight)
	transcript.Write(flight2)

	resp, err := newRetransmitter(t, cfg.Config, flight2).awaitResponse(ctx)
	if err != nil {
		return nil, err
	}
	headers, bodies, err := splitMessages(resp)
	if err != nil {
		return nil, failf("malformed flight", err)
	}
	if len(headers) != 2 || headers[0].MsgType != HandshakeClientKeyExchange || headers[1].MsgType != HandshakeFinished {
		return nil, failf("expected client_key_exchange + finished", nil)
	}
	clientPub, err := parseClientKeyExchange(bodies[0])
	if err != nil {
		return nil, failf("malformed client_key_exchange", err)
	}
	clientVerifyData, err := parseFinished(bodies[1])
	if err != nil {
		return nil, failf("malformed finished", err)
	}

	shared, err := kp.sharedSecret(clientPub)
	if err != nil {
		return nil, failf("ecdhe computation failed", err)
	}
	masterSecret := deriveMasterSecret(shared, ch.Random, serverRandom)

	// headers[0]'s message is the ckeFlight prefix of resp; recompute
	// its exact byte span so the transcript matches byte-for-byte what
	// the client hashed.
	ckeLen := handshakeHeaderLen + len(bodies[0])
	ckeFlight := resp[:ckeLen]
	finishedClientFlight := resp[ckeLen:]

	transcript.Write(ckeFlight)
	wantClientVerify := prf(masterSecret[:], "client finished", transcript.Bytes(), finishedVerifyDataLen)
	if !bytes.Equal(clientVerifyData, wantClientVerify) {
		return nil, failf("client finished verification failed", nil)
	}
	transcript.Write(finishedClientFlight)

	serverVerifyData := prf(masterSecret[:], "server finished", transcript.Bytes(), finishedVerifyDataLen)
	finishedServerFlight := buildMessage(HandshakeFinished, marshalFinished(serverVerifyData), 4)
	if err := t.WriteDatagram(ctx, finishedServerFlight); err != nil {
		return nil, failf("transport write failed", err)
	}

	return &Result{
		Role:               RoleServer,
		CipherSuite:        cipherSuite,
		SRTPProfile:        srtpProfile,
		ClientRandom:       ch.Random,
		ServerRandom:       serverRandom,
		MasterSecret:       masterSecret,
		SRTPKeyingMaterial: exportSRTPKeyingMaterial(masterSecret, ch.Random, serverRandom),
	}, nil
}

// selectCipherSuite returns the first server-supported suite that also
// appears in the client's offer, preserving client preference order.
func selectCipherSuite(offered []CipherSuite) (CipherSuite, bool) {
	for _, want := range offered {
		for _, supported := range ServerSupportedCipherSuites {
			if want == supported {
				return want, true
			}
		}
	}
	return 0, false
}

// selectSRTPProfile intersects the client's offered profiles with this
// module's accepted set, preferring _80 over _32.
func selectSRTPProfile(offered []SRTPProfile) (SRTPProfile, bool) {
	for _, accepted := range OfferedSRTPProfiles {
		for _, want := range offered {
			if want == accepted {
				return accepted, true
			}
		}
	}
	return 0, false
}
