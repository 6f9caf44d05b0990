package transaction

import (
	"net"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transport"
)

// TransportAdapter adapts a transport.TransportManager to the
// transaction layer's narrower Transport interface.
type TransportAdapter struct {
	manager transport.TransportManager
}

// NewTransportAdapter wraps manager for use by the transaction layer.
func NewTransportAdapter(manager transport.TransportManager) Transport {
	return &TransportAdapter{
		manager: manager,
	}
}

// Send dispatches msg to addr through the underlying transport manager.
func (a *TransportAdapter) Send(msg types.Message, addr string) error {
	return a.manager.Send(msg, addr)
}

// IsReliable reports whether the transport the manager would pick for
// addr is reliable (TCP/TLS/WS), which governs whether Timer A/E/G/etc.
// retransmissions apply at all (RFC 3261 §17.1.1.2/§17.1.2.2).
func (a *TransportAdapter) IsReliable(addr string) bool {
	tr, err := a.manager.GetPreferredTransport(addr)
	if err != nil {
		return false
	}
	return tr.Reliable()
}

// OnMessage registers a callback for inbound messages on any registered
// transport.
func (a *TransportAdapter) OnMessage(handler func(msg types.Message, addr net.Addr)) {
	a.manager.OnMessage(func(msg types.Message, addr net.Addr, _ transport.Transport) {
		handler(msg, addr)
	})
}
