package transaction

import (
	"fmt"
	"strings"

	"github.com/arzzra/voipcore/pkg/sip/core/builder"
	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// MessageBuilder constructs the small set of requests the transaction
// layer itself is responsible for building, as opposed to the TU.
type MessageBuilder struct{}

// NewMessageBuilder returns a MessageBuilder.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{}
}

// BuildACKForNon2xx builds the ACK for a non-2xx final response to an
// INVITE, per RFC 3261 §17.1.1.3. The ACK is part of the same transaction
// and reuses the INVITE's Via, From, Call-ID, CSeq number, and Route,
// taking only To from the response (which may carry a remote tag). The
// ACK for a 2xx response is built by the dialog layer instead, since it
// forms a request of its own dialog-level transaction (§13.2.2.4).
func (b *MessageBuilder) BuildACKForNon2xx(invite types.Message, response types.Message) (types.Message, error) {
	if !invite.IsRequest() || invite.Method() != "INVITE" {
		return nil, fmt.Errorf("not an INVITE request")
	}

	if !response.IsResponse() || response.StatusCode() < 300 {
		return nil, fmt.Errorf("not a non-2xx response")
	}

	msgBuilder := builder.NewMessageBuilder()
	ackBuilder := msgBuilder.NewRequest("ACK", invite.RequestURI())

	if via := invite.GetHeader("Via"); via != "" {
		ackBuilder.SetHeader("Via", via)
	}

	if from := invite.GetHeader("From"); from != "" {
		ackBuilder.SetHeader("From", from)
	}

	if to := response.GetHeader("To"); to != "" {
		ackBuilder.SetHeader("To", to)
	}

	if callID := invite.GetHeader("Call-ID"); callID != "" {
		ackBuilder.SetHeader("Call-ID", callID)
	}

	if cseq := invite.GetHeader("CSeq"); cseq != "" {
		parts := strings.Fields(cseq)
		if len(parts) >= 1 {
			ackBuilder.SetHeader("CSeq", parts[0]+" ACK")
		}
	}

	if route := invite.GetHeader("Route"); route != "" {
		ackBuilder.SetHeader("Route", route)
	}

	ackBuilder.SetMaxForwards(70)
	ackBuilder.SetHeader("Content-Length", "0")

	return ackBuilder.Build()
}

// BuildCANCEL builds a CANCEL for request, per RFC 3261 §9.1: same Via,
// From, To (without tag), Call-ID, and CSeq number as the request being
// cancelled, but method CANCEL and its own transaction.
func (b *MessageBuilder) BuildCANCEL(request types.Message) (types.Message, error) {
	if !request.IsRequest() {
		return nil, fmt.Errorf("not a request")
	}

	if request.Method() == "ACK" || request.Method() == "CANCEL" {
		return nil, fmt.Errorf("cannot cancel %s request", request.Method())
	}

	msgBuilder := builder.NewMessageBuilder()
	cancelBuilder := msgBuilder.NewRequest("CANCEL", request.RequestURI())

	if via := request.GetHeader("Via"); via != "" {
		cancelBuilder.SetHeader("Via", via)
	}

	if from := request.GetHeader("From"); from != "" {
		cancelBuilder.SetHeader("From", from)
	}

	if to := request.GetHeader("To"); to != "" {
		cancelBuilder.SetHeader("To", to)
	}

	if callID := request.GetHeader("Call-ID"); callID != "" {
		cancelBuilder.SetHeader("Call-ID", callID)
	}

	if cseq := request.GetHeader("CSeq"); cseq != "" {
		parts := strings.Fields(cseq)
		if len(parts) >= 1 {
			cancelBuilder.SetHeader("CSeq", parts[0]+" CANCEL")
		}
	}

	if route := request.GetHeader("Route"); route != "" {
		cancelBuilder.SetHeader("Route", route)
	}

	cancelBuilder.SetMaxForwards(70)
	cancelBuilder.SetHeader("Content-Length", "0")

	return cancelBuilder.Build()
}
