package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
	"github.com/arzzra/voipcore/pkg/sip/transaction"
)

// mockTransport implements transaction.Transport for tests.
type mockTransport struct {
	mu           sync.Mutex
	sentMessages []types.Message
	sentAddrs    []string
	reliable     bool
	sendError    error
}

func (m *mockTransport) Send(msg types.Message, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendError != nil {
		return m.sendError
	}
	m.sentMessages = append(m.sentMessages, msg)
	m.sentAddrs = append(m.sentAddrs, addr)
	return nil
}

func (m *mockTransport) IsReliable(addr string) bool { return m.reliable }

func (m *mockTransport) messages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Message, len(m.sentMessages))
	copy(out, m.sentMessages)
	return out
}

func (m *mockTransport) addrs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sentAddrs))
	copy(out, m.sentAddrs)
	return out
}

// recordingSink collects every event handed to it by a transaction.
type recordingSink struct {
	mu     sync.Mutex
	events []transaction.Event
}

func (s *recordingSink) HandleTransactionEvent(ev transaction.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []transaction.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transaction.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) has(kind transaction.EventKind) bool {
	for _, ev := range s.all() {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

// mockRequest implements types.Message for a request.
type mockRequest struct {
	method  string
	uri     types.URI
	headers map[string]string
	body    []byte
}

func (r *mockRequest) IsRequest() bool                     { return true }
func (r *mockRequest) IsResponse() bool                    { return false }
func (r *mockRequest) Method() string                      { return r.method }
func (r *mockRequest) RequestURI() types.URI               { return r.uri }
func (r *mockRequest) StatusCode() int                     { return 0 }
func (r *mockRequest) ReasonPhrase() string                { return "" }
func (r *mockRequest) SIPVersion() string                  { return "SIP/2.0" }
func (r *mockRequest) GetHeader(name string) string        { return r.headers[name] }
func (r *mockRequest) GetHeaders(name string) []string     { return []string{r.headers[name]} }
func (r *mockRequest) SetHeader(name string, value string) { r.headers[name] = value }
func (r *mockRequest) AddHeader(name string, value string) { r.headers[name] = value }
func (r *mockRequest) RemoveHeader(name string)             { delete(r.headers, name) }
func (r *mockRequest) Headers() map[string][]string {
	result := make(map[string][]string)
	for k, v := range r.headers {
		result[k] = []string{v}
	}
	return result
}
func (r *mockRequest) Body() []byte         { return r.body }
func (r *mockRequest) SetBody(body []byte)  { r.body = body }
func (r *mockRequest) ContentLength() int   { return len(r.body) }
func (r *mockRequest) String() string       { return "" }
func (r *mockRequest) Bytes() []byte        { return []byte(r.String()) }
func (r *mockRequest) Clone() types.Message { return r }

// mockURI implements types.URI.
type mockURI struct {
	host string
	port int
}

func (u *mockURI) Scheme() string                         { return "sip" }
func (u *mockURI) User() string                           { return "" }
func (u *mockURI) Password() string                       { return "" }
func (u *mockURI) Host() string                           { return u.host }
func (u *mockURI) Port() int                               { return u.port }
func (u *mockURI) Parameter(name string) string           { return "" }
func (u *mockURI) Parameters() map[string]string          { return nil }
func (u *mockURI) SetParameter(name string, value string) {}
func (u *mockURI) Header(name string) string               { return "" }
func (u *mockURI) Headers() map[string]string              { return nil }
func (u *mockURI) String() string                          { return "sip:example.com" }
func (u *mockURI) Clone() types.URI                        { return u }
func (u *mockURI) Equals(other types.URI) bool             { return false }

func createTestRequest(method string) *mockRequest {
	return &mockRequest{
		method: method,
		uri:    &mockURI{host: "example.com", port: 5060},
		headers: map[string]string{
			"Via":     "SIP/2.0/UDP client.example.com:5060;branch=z9hG4bK74bf9",
			"From":    "Alice <sip:alice@example.com>;tag=9fxced76sl",
			"To":      "Bob <sip:bob@example.com>",
			"Call-ID": "3848276298220188511@example.com",
			"CSeq":    "1 " + method,
		},
	}
}

// mockResponse implements types.Message for a response.
type mockResponse struct {
	statusCode int
	reason     string
	headers    map[string]string
}

func (r *mockResponse) IsRequest() bool                     { return false }
func (r *mockResponse) IsResponse() bool                    { return true }
func (r *mockResponse) Method() string                      { return "" }
func (r *mockResponse) RequestURI() types.URI               { return nil }
func (r *mockResponse) StatusCode() int                     { return r.statusCode }
func (r *mockResponse) ReasonPhrase() string                { return r.reason }
func (r *mockResponse) SIPVersion() string                  { return "SIP/2.0" }
func (r *mockResponse) GetHeader(name string) string        { return r.headers[name] }
func (r *mockResponse) GetHeaders(name string) []string     { return []string{r.headers[name]} }
func (r *mockResponse) SetHeader(name string, value string) { r.headers[name] = value }
func (r *mockResponse) AddHeader(name string, value string) { r.headers[name] = value }
func (r *mockResponse) RemoveHeader(name string)             { delete(r.headers, name) }
func (r *mockResponse) Headers() map[string][]string {
	result := make(map[string][]string)
	for k, v := range r.headers {
		result[k] = []string{v}
	}
	return result
}
func (r *mockResponse) Body() []byte         { return nil }
func (r *mockResponse) SetBody(body []byte)  {}
func (r *mockResponse) ContentLength() int   { return 0 }
func (r *mockResponse) String() string       { return "" }
func (r *mockResponse) Bytes() []byte        { return []byte(r.String()) }
func (r *mockResponse) Clone() types.Message { return r }

func createTestResponse(statusCode int, cseq string) *mockResponse {
	return &mockResponse{
		statusCode: statusCode,
		reason:     "OK",
		headers: map[string]string{
			"Via":     "SIP/2.0/UDP client.example.com:5060;branch=z9hG4bK74bf9",
			"From":    "Alice <sip:alice@example.com>;tag=9fxced76sl",
			"To":      "Bob <sip:bob@example.com>;tag=8321234356",
			"Call-ID": "3848276298220188511@example.com",
			"CSeq":    cseq,
		},
	}
}

func testKey(method string) transaction.TransactionKey {
	return transaction.TransactionKey{Branch: "z9hG4bK74bf9", Method: method, Client: false}
}

func TestBaseTransaction(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("OPTIONS")
	timers := transaction.DefaultTimers()
	sink := &recordingSink{}

	tx := NewBaseTransaction("test-tx-1", testKey("OPTIONS"), transaction.NonInviteServer, req, tr, timers, sink)

	assert.Equal(t, "test-tx-1", tx.ID())
	assert.False(t, tx.IsClient())
	assert.Equal(t, transaction.Trying, tx.State())
	assert.Equal(t, req, tx.Request())

	assert.Error(t, tx.SendRequest(req))

	resp := createTestResponse(200, "1 OPTIONS")
	require.NoError(t, tx.SendResponse(resp))
	require.Len(t, tr.messages(), 1)
	assert.Equal(t, "client.example.com:5060", tr.addrs()[0])
}

func TestBaseTransactionRetransmitReplaysLastResponse(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("OPTIONS")
	timers := transaction.DefaultTimers()
	sink := &recordingSink{}

	tx := NewBaseTransaction("test-tx-2", testKey("OPTIONS"), transaction.NonInviteServer, req, tr, timers, sink)

	resp := createTestResponse(200, "1 OPTIONS")
	require.NoError(t, tx.SendResponse(resp))

	require.NoError(t, tx.HandleRequest(req))
	assert.Len(t, tr.messages(), 2)
}

func TestBaseTransactionTerminate(t *testing.T) {
	tr := &mockTransport{reliable: false}
	req := createTestRequest("INVITE")
	timers := transaction.DefaultTimers()
	sink := &recordingSink{}

	tx := NewBaseTransaction("test-tx-3", testKey("INVITE"), transaction.InviteServer, req, tr, timers, sink)

	fired := false
	tx.startTimer(transaction.TimerG, func() { fired = true })

	tx.Terminate()

	assert.True(t, tx.IsTerminated())
	assert.False(t, fired)
	assert.True(t, sink.has(transaction.EventTransactionTerminated))
}
