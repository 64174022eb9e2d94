package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solanastream/pumprelay/internal/event"
)

const testProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

type captureSink struct {
	events chan event.TokenEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{events: make(chan event.TokenEvent, 64)}
}

func (s *captureSink) Publish(ev event.TokenEvent) {
	s.events <- ev
}

// accountBytes builds a minimal valid account payload.
func accountBytes(name, symbol string) []byte {
	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{0xAA}, 8))
	buf.Write(bytes.Repeat([]byte{0x01}, 32)) // mint
	writeStr(&buf, name)
	writeStr(&buf, symbol)
	buf.Write(bytes.Repeat([]byte{0x02}, 32)) // creator
	writeU64(&buf, 1_000_000_000)
	buf.WriteByte(6)
	buf.Write(bytes.Repeat([]byte{0x03}, 32)) // bonding curve
	writeU64(&buf, 30_000_000_000)
	writeU64(&buf, 1_073_000_000_000_000)
	return buf.Bytes()
}

func writeStr(buf *bytes.Buffer, s string) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func notificationFrame(pubkey string, slot uint64, data []byte) string {
	return fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"programNotification","params":{"subscription":1,"result":{"context":{"slot":%d},"value":{"pubkey":%q,"account":{"owner":%q,"data":[%q,"base64"]}}}}}`,
		slot, pubkey, testProgramID, base64.StdEncoding.EncodeToString(data),
	)
}

// upstreamStub is a WebSocket server standing in for the Solana RPC feed.
// Each accepted connection is handled by session, in accept order.
type upstreamStub struct {
	t       *testing.T
	srv     *httptest.Server
	dials   atomic.Int64
	session func(n int64, conn *websocket.Conn)
}

func newUpstreamStub(t *testing.T, session func(n int64, conn *websocket.Conn)) *upstreamStub {
	stub := &upstreamStub{t: t, session: session}
	upgrader := websocket.Upgrader{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		stub.session(stub.dials.Add(1), conn)
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (s *upstreamStub) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// readSubscribe consumes and checks the subscription request. Returns
// false when the connection died first (e.g. during test shutdown).
func readSubscribe(t *testing.T, conn *websocket.Conn) bool {
	t.Helper()
	var req map[string]any
	if err := conn.ReadJSON(&req); err != nil {
		return false
	}
	assert.Equal(t, "programSubscribe", req["method"])
	params, ok := req["params"].([]any)
	if assert.True(t, ok, "params is not an array") && assert.NotEmpty(t, params) {
		assert.Equal(t, testProgramID, params[0])
	}
	return true
}

func ack(conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","result":1,"id":1}`))
}

func newTestConnector(url string, sink Sink) *Connector {
	logger := zerolog.Nop()
	return New(Options{
		URL:        url,
		ProgramID:  testProgramID,
		RetryDelay: 20 * time.Millisecond,
	}, sink, &logger)
}

func TestConnector_StreamsAndReconnects(t *testing.T) {
	stub := newUpstreamStub(t, func(n int64, conn *websocket.Conn) {
		if !readSubscribe(t, conn) {
			return
		}
		if err := ack(conn); err != nil {
			return
		}
		frame := notificationFrame("PK1session", uint64(n), accountBytes("Foo", "FOO"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		// Session ends here; the connector must come back for more.
	})

	sink := newCaptureSink()
	c := newTestConnector(stub.wsURL(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// One event per session; two events prove a reconnect happened
	// without a restart.
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sink.events:
			assert.Equal(t, "token_created", ev.EventType)
			assert.Equal(t, "Foo", ev.Token.Name)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	assert.GreaterOrEqual(t, stub.dials.Load(), int64(2))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connector did not stop after cancellation")
	}
	assert.Equal(t, StateDisconnected, c.Status().State)
}

func TestConnector_SubscriptionRejected(t *testing.T) {
	stub := newUpstreamStub(t, func(_ int64, conn *websocket.Conn) {
		if !readSubscribe(t, conn) {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","error":{"code":-32602,"message":"invalid filter"},"id":1}`))
	})

	sink := newCaptureSink()
	c := newTestConnector(stub.wsURL(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// The rejection is retried, not fatal.
	require.Eventually(t, func() bool {
		return stub.dials.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond, "connector gave up after subscription rejection")

	assert.Empty(t, sink.events)
	assert.Greater(t, c.Status().Retries, uint64(0))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("connector did not stop after cancellation")
	}
}

func TestConnector_ConnectFailureRetries(t *testing.T) {
	// Nothing is listening on this address.
	sink := newCaptureSink()
	c := newTestConnector("ws://127.0.0.1:1/ws", sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return c.Status().Retries >= 2
	}, 5*time.Second, 10*time.Millisecond, "connector stopped retrying")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connector did not stop after cancellation")
	}
}

func TestConnector_SkipsRejectedFrames(t *testing.T) {
	release := make(chan struct{})
	stub := newUpstreamStub(t, func(n int64, conn *websocket.Conn) {
		if n > 1 {
			// Keep later sessions idle so events are not duplicated.
			<-release
			return
		}
		if !readSubscribe(t, conn) {
			return
		}
		if err := ack(conn); err != nil {
			return
		}
		frames := []string{
			`{"jsonrpc":"2.0","method":"slotNotification","params":{"result":{"slot":1}}}`,
			`this is not json`,
			notificationFrame("PK1good", 77, accountBytes("Keeper", "KEEP")),
		}
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		<-release
	})
	defer close(release)

	sink := newCaptureSink()
	c := newTestConnector(stub.wsURL(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case ev := <-sink.events:
		assert.Equal(t, "Keeper", ev.Token.Name)
		assert.Equal(t, "PK1good_77", ev.TransactionSignature)
	case <-time.After(5 * time.Second):
		t.Fatal("good frame never made it through")
	}

	// The rejected frames produced nothing.
	select {
	case ev := <-sink.events:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, StateStreaming, c.Status().State)
}

func TestConnector_AckAsFirstNotification(t *testing.T) {
	// Some endpoints push before the subscription ack is observed; the
	// first frame being a notification must count as confirmation.
	release := make(chan struct{})
	stub := newUpstreamStub(t, func(n int64, conn *websocket.Conn) {
		if n > 1 {
			<-release
			return
		}
		if !readSubscribe(t, conn) {
			return
		}
		frame := notificationFrame("PK1early", 5, accountBytes("Early", "ERL"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		<-release
	})
	defer close(release)

	sink := newCaptureSink()
	c := newTestConnector(stub.wsURL(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case ev := <-sink.events:
		assert.Equal(t, "Early", ev.Token.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("early notification was not processed")
	}
}

func TestConnector_InitialState(t *testing.T) {
	sink := newCaptureSink()
	c := newTestConnector("ws://127.0.0.1:1/ws", sink)

	status := c.Status()
	assert.Equal(t, StateDisconnected, status.State)
	assert.Equal(t, uint64(0), status.Retries)
	assert.Equal(t, "disconnected", status.State.String())
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateDisconnected:        "disconnected",
		StateConnecting:          "connecting",
		StateSubscriptionPending: "subscription_pending",
		StateStreaming:           "streaming",
		State(99):                "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
	text, err := StateStreaming.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "streaming", string(text))

	raw, err := json.Marshal(Status{State: StateConnecting, Retries: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"connecting","retries":3}`, string(raw))
}
