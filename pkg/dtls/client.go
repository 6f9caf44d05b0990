package dtls

import (
	"bytes"
	"context"
)

// ClientConfig parameterizes a client handshake.
type ClientConfig struct {
	Config
}

// DefaultClientConfig returns the documented retransmission defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{Config: DefaultConfig()}
}

// ClientHandshake drives the client side of the handshake flow
// documented in spec §4.4.1 over t, returning the negotiated keying
// material or a HandshakeFailedError. On any failure the returned
// Result is nil; no partially-derived secret ever crosses that boundary.
//
// The transcript hash feeding the Finished exchange (RFC 5246 §7.4.9)
// starts at the cookie-bearing ClientHello, per RFC 6347's guidance
// that the stateless first ClientHello/HelloVerifyRequest round is
// excluded from the handshake transcript.
func ClientHandshake(ctx context.Context, t Transport, cfg ClientConfig) (*Result, error) {
	clientRandom, err := newRandom()
	if err != nil {
		return nil, failf("random generation failed", err)
	}
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, failf("random generation failed", err)
	}

	hello1 := marshalClientHello(clientHelloMsg{
		Random:       clientRandom,
		SessionID:    sessionID,
		CipherSuites: ServerSupportedCipherSuites,
		SRTPProfiles: OfferedSRTPProfiles,
	})
	flight1 := buildMessage(HandshakeClientHello, hello1, 0)

	resp, err := newRetransmitter(t, cfg.Config, flight1).awaitResponse(ctx)
	if err != nil {
		return nil, err
	}
	headers, bodies, err := splitMessages(resp)
	if err != nil {
		return nil, failf("malformed flight", err)
	}
	if len(headers) != 1 || headers[0].MsgType != HandshakeHelloVerifyReq {
		return nil, failf("expected hello_verify_request", nil)
	}
	cookie, err := parseHelloVerifyRequest(bodies[0])
	if err != nil {
		return nil, failf("malformed hello_verify_request", err)
	}

	hello2 := marshalClientHello(clientHelloMsg{
		Random:       clientRandom,
		SessionID:    sessionID,
		Cookie:       cookie,
		CipherSuites: ServerSupportedCipherSuites,
		SRTPProfiles: OfferedSRTPProfiles,
	})
	clientHelloFlight := buildMessage(HandshakeClientHello, hello2, 1)

	var transcript bytes.Buffer
	transcript.Write(clientHelloFlight)

	resp, err = newRetransmitter(t, cfg.Config, clientHelloFlight).awaitResponse(ctx)
	if err != nil {
		return nil, err
	}
	transcript.Write(resp)

	headers, bodies, err = splitMessages(resp)
	if err != nil {
		return nil, failf("malformed flight", err)
	}
	if len(headers) != 2 || headers[0].MsgType != HandshakeServerHello || headers[1].MsgType != HandshakeServerKeyExchange {
		return nil, failf("expected server_hello + server_key_exchange", nil)
	}
	serverHello, err := parseServerHello(bodies[0])
	if err != nil {
		return nil, failf("malformed server_hello", err)
	}
	if !acceptedCipherSuite(serverHello.CipherSuite) {
		return nil, failf("unsupported cipher suite selected by server", nil)
	}
	serverPub, err := parseServerKeyExchange(bodies[1])
	if err != nil {
		return nil, failf("malformed server_key_exchange", err)
	}

	kp, err := generateECDHEKeyPair()
	if err != nil {
		return nil, failf("key generation failed", err)
	}
	shared, err := kp.sharedSecret(serverPub)
	if err != nil {
		return nil, failf("ecdhe computation failed", err)
	}
	masterSecret := deriveMasterSecret(shared, clientRandom, serverHello.Random)

	cke := marshalClientKeyExchange(kp.publicKeyBytes())
	ckeFlight := buildMessage(HandshakeClientKeyExchange, cke, 2)
	transcript.Write(ckeFlight)

	verifyDataClient := prf(masterSecret[:], "client finished", transcript.Bytes(), finishedVerifyDataLen)
	finishedClientFlight := buildMessage(HandshakeFinished, marshalFinished(verifyDataClient), 3)
	transcript.Write(finishedClientFlight)

	flight3 := append(append([]byte(nil), ckeFlight...), finishedClientFlight...)
	resp, err = newRetransmitter(t, cfg.Config, flight3).awaitResponse(ctx)
	if err != nil {
		return nil, err
	}
	headers, bodies, err = splitMessages(resp)
	if err != nil {
		return nil, failf("malformed flight", err)
	}
	if len(headers) != 1 || headers[0].MsgType != HandshakeFinished {
		return nil, failf("expected server finished", nil)
	}
	serverVerifyData, err := parseFinished(bodies[0])
	if err != nil {
		return nil, failf("malformed finished", err)
	}
	wantServerVerify := prf(masterSecret[:], "server finished", transcript.Bytes(), finishedVerifyDataLen)
	if !bytes.Equal(serverVerifyData, wantServerVerify) {
		return nil, failf("server finished verification failed", nil)
	}

	return &Result{
		Role:               RoleClient,
		CipherSuite:        serverHello.CipherSuite,
		SRTPProfile:        serverHello.SRTPProfile,
		ClientRandom:       clientRandom,
		ServerRandom:       serverHello.Random,
		MasterSecret:       masterSecret,
		SRTPKeyingMaterial: exportSRTPKeyingMaterial(masterSecret, clientRandom, serverHello.Random),
	}, nil
}

func acceptedCipherSuite(cs CipherSuite) bool {
	for _, s := range ServerSupportedCipherSuites {
		if s == cs {
			return true
		}
	}
	return false
}
