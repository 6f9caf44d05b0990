package dialog

import (
	"context"
	"fmt"
	"time"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// SendRefer initiates a call transfer (RFC 3515): it sends a REFER whose
// Refer-To names the transfer target and stores the resulting transaction
// so WaitRefer can observe its outcome.
func (d *Dialog) SendRefer(ctx context.Context, targetURI string, opts *ReferOpts) error {
	d.mu.Lock()
	if !d.stateMachine.IsEstablished() {
		d.mu.Unlock()
		return ErrInvalidState
	}
	if d.referTx != nil && !d.referTx.IsTerminated() {
		d.mu.Unlock()
		return fmt.Errorf("REFER transaction already in progress")
	}
	d.mu.Unlock()

	uri, err := types.ParseURI(targetURI)
	if err != nil {
		return fmt.Errorf("invalid REFER target: %w", err)
	}

	refer := d.createRequest(types.MethodREFER)
	referTo := types.NewAddress("", uri)
	refer.SetHeader("Refer-To", referTo.String())

	if opts != nil {
		if opts.NoReferSub {
			refer.SetHeader("Refer-Sub", "false")
		} else if opts.ReferSub != nil {
			refer.SetHeader("Refer-Sub", *opts.ReferSub)
		}
		for name, value := range opts.Headers {
			refer.SetHeader(name, value)
		}
	}

	tx, err := d.txManager.CreateClientTransaction(refer)
	if err != nil {
		return fmt.Errorf("failed to send REFER: %w", err)
	}

	d.mu.Lock()
	d.referTx = tx
	d.mu.Unlock()

	return nil
}

// ReferReplace performs an attended transfer (RFC 3891): it sends a REFER
// carrying a Replaces header built from replaceDialog's identity, asking
// the peer to replace that dialog instead of starting a fresh call.
func (d *Dialog) ReferReplace(ctx context.Context, targetURI string, replaceDialog IDialog, opts *ReferOpts) error {
	if replaceDialog == nil {
		return fmt.Errorf("replace dialog cannot be nil")
	}

	replaceKey := replaceDialog.Key()
	replaces := fmt.Sprintf("%s;to-tag=%s;from-tag=%s",
		replaceKey.CallID, replaceKey.RemoteTag, replaceKey.LocalTag)

	if opts == nil {
		opts = &ReferOpts{}
	}
	if opts.Headers == nil {
		opts.Headers = make(map[string]string)
	}
	opts.Headers["Replaces"] = replaces

	return d.SendRefer(ctx, targetURI, opts)
}

// WaitRefer blocks until the REFER transaction started by SendRefer
// reaches a final response, returning a subscription that tracks the
// transfer's progress via subsequent NOTIFY requests.
func (d *Dialog) WaitRefer(ctx context.Context) (*ReferSubscription, error) {
	d.mu.RLock()
	tx := d.referTx
	d.mu.RUnlock()

	if tx == nil {
		return nil, fmt.Errorf("no REFER transaction found")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case <-tx.Context().Done():
		resp := tx.LastResponse()
		if resp == nil {
			return nil, fmt.Errorf("REFER transaction terminated without response")
		}

		statusCode := resp.StatusCode()
		if statusCode < 200 || statusCode >= 300 {
			return nil, fmt.Errorf("REFER rejected with %d %s", statusCode, resp.ReasonPhrase())
		}

		subscription := d.createReferSubscription(resp)

		d.mu.Lock()
		d.referSubscriptions[subscription.ID] = subscription
		d.mu.Unlock()

		go d.handleReferNotify(subscription)

		return subscription, nil
	}
}

// createReferSubscription builds the bookkeeping record for a REFER's
// implicit subscription (RFC 3515 §2.4.4).
func (d *Dialog) createReferSubscription(resp types.Message) *ReferSubscription {
	subID := fmt.Sprintf("refer-%s-%d", d.key.CallID, time.Now().UnixNano())

	event := resp.GetHeader("Event")
	if event == "" {
		event = "refer"
	}

	return &ReferSubscription{
		ID:       subID,
		Event:    event,
		State:    "active",
		Progress: 0,
		Done:     make(chan struct{}),
	}
}

// handleReferNotify waits for the subscription to terminate, either via a
// NOTIFY processed through ProcessNotify or a timeout if the peer never
// sends one.
func (d *Dialog) handleReferNotify(subscription *ReferSubscription) {
	timer := time.NewTimer(30 * time.Second)
	defer timer.Stop()

	select {
	case <-d.ctx.Done():
		subscription.Error = d.ctx.Err()
		close(subscription.Done)

	case <-subscription.Done:
		// Closed by ProcessNotify once the subscription terminates.

	case <-timer.C:
		subscription.State = "terminated"
		close(subscription.Done)
	}
}

// ProcessNotify handles a NOTIFY belonging to an active REFER subscription,
// updating its state and progress from the Subscription-State header and
// any message/sipfrag body (RFC 3515 §2.4.5).
func (d *Dialog) ProcessNotify(notify types.Message) error {
	if notify.Method() != "NOTIFY" {
		return fmt.Errorf("not a NOTIFY request")
	}

	event := notify.GetHeader("Event")
	if event != "refer" && !startsWith(event, "refer;") {
		return nil
	}

	subState := notify.GetHeader("Subscription-State")
	if subState == "" {
		return fmt.Errorf("missing Subscription-State header")
	}

	d.mu.RLock()
	var subscription *ReferSubscription
	for _, sub := range d.referSubscriptions {
		if sub.State == "active" {
			subscription = sub
			break
		}
	}
	d.mu.RUnlock()

	if subscription == nil {
		return fmt.Errorf("no active REFER subscription found")
	}

	subscription.State = parseSubscriptionState(subState)

	if body := notify.Body(); body != nil {
		contentType := notify.GetHeader("Content-Type")
		if contentType == "message/sipfrag" {
			subscription.Progress = parseSipFragStatus(body)
		}
	}

	if subscription.State == "terminated" {
		close(subscription.Done)

		d.mu.Lock()
		delete(d.referSubscriptions, subscription.ID)
		d.mu.Unlock()
	}

	return nil
}

// startsWith reports whether s begins with prefix.
func startsWith(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// parseSubscriptionState extracts the state token from a Subscription-State
// header, e.g. "active;expires=60" -> "active".
func parseSubscriptionState(header string) string {
	for i, ch := range header {
		if ch == ';' || ch == ' ' {
			return header[:i]
		}
	}
	return header
}

// parseSipFragStatus extracts the status code from a message/sipfrag body
// ("SIP/2.0 200 OK" -> 200).
func parseSipFragStatus(body []byte) int {
	str := string(body)

	const prefix = "SIP/2.0 "
	idx := 0
	for i := 0; i <= len(str)-len(prefix); i++ {
		if str[i:i+len(prefix)] == prefix {
			idx = i + len(prefix)
			break
		}
	}
	if idx == 0 {
		return 0
	}

	code := 0
	for idx < len(str) && str[idx] >= '0' && str[idx] <= '9' {
		code = code*10 + int(str[idx]-'0')
		idx++
	}

	return code
}

// GetReferSubscriptions returns the dialog's currently tracked REFER
// subscriptions.
func (d *Dialog) GetReferSubscriptions() []*ReferSubscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subs := make([]*ReferSubscription, 0, len(d.referSubscriptions))
	for _, sub := range d.referSubscriptions {
		subs = append(subs, sub)
	}

	return subs
}
