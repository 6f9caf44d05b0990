package dtls

import (
	"context"
	"time"
)

// retransmitter resends a flight on a T1-doubling schedule (initial
// timeout, doubling up to 60s) until ReadDatagram returns a datagram or
// the number of retransmissions after the first send exceeds
// MaxRetransmissions.
type retransmitter struct {
	t        Transport
	cfg      Config
	flight   []byte
	attempts int
}

const maxBackoff = 60 * time.Second

func newRetransmitter(t Transport, cfg Config, flight []byte) *retransmitter {
	return &retransmitter{t: t, cfg: cfg, flight: flight}
}

// awaitResponse sends the flight, then waits up to the current backoff
// for a datagram, resending and doubling the backoff on timeout. It
// returns the first datagram received, or an error once the
// retransmission cap is exceeded.
func (r *retransmitter) awaitResponse(ctx context.Context) ([]byte, error) {
	timeout := r.cfg.InitialHandshakeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	maxAttempts := r.cfg.MaxRetransmissions
	if maxAttempts <= 0 {
		maxAttempts = 6
	}

	for {
		if err := r.t.WriteDatagram(ctx, r.flight); err != nil {
			return nil, failf("transport write failed", err)
		}
		r.attempts++

		recvCtx, cancel := context.WithTimeout(ctx, timeout)
		datagram, err := r.t.ReadDatagram(recvCtx)
		cancel()
		if err == nil {
			return datagram, nil
		}
		if ctx.Err() != nil {
			return nil, failf("handshake canceled", ctx.Err())
		}
		// attempts counts the first send too, so retransmissions so far
		// are attempts-1.
		if r.attempts > maxAttempts {
			return nil, failf("retransmission count exceeded", err)
		}
		timeout *= 2
		if timeout > maxBackoff {
			timeout = maxBackoff
		}
	}
}
