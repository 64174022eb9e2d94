// Package upstream owns the subscription to the Solana RPC WebSocket feed.
//
// The connector keeps exactly one live subscription open for the process
// lifetime. On any failure it logs, waits a fixed delay, and reconnects;
// retries never stop until the shutdown context is cancelled. Received
// frames are transformed inline and published to the sink.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/solanastream/pumprelay/internal/event"
	"github.com/solanastream/pumprelay/internal/metrics"
	"github.com/solanastream/pumprelay/internal/transform"
	"github.com/solanastream/pumprelay/pkg/errors"
)

// Sink receives the canonical events the connector produces.
type Sink interface {
	Publish(event.TokenEvent)
}

// Options configure a Connector.
type Options struct {
	// URL is the upstream WebSocket endpoint.
	URL string

	// ProgramID is the program whose account changes are subscribed to.
	ProgramID string

	// RetryDelay is the fixed wait between reconnect attempts.
	RetryDelay time.Duration
}

// Connector maintains the upstream subscription and feeds the pipeline.
type Connector struct {
	opts        Options
	sink        Sink
	transformer *transform.Transformer
	dialer      *websocket.Dialer
	logger      zerolog.Logger

	state   atomic.Int32
	retries atomic.Uint64
}

// New creates a connector publishing transformed events to sink.
func New(opts Options, sink Sink, logger *zerolog.Logger) *Connector {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &Connector{
		opts:        opts,
		sink:        sink,
		transformer: transform.New(opts.ProgramID),
		dialer:      websocket.DefaultDialer,
		logger:      logger.With().Str("component", "upstream").Logger(),
	}
}

// Status returns a snapshot of the connector state and retry count.
func (c *Connector) Status() Status {
	return Status{
		State:   State(c.state.Load()),
		Retries: c.retries.Load(),
	}
}

// Run drives the connect/subscribe/stream loop until ctx is cancelled.
// Every failure is logged and retried after the fixed delay; no reconnect
// attempt begins once ctx is done.
func (c *Connector) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		c.state.Store(int32(StateDisconnected))

		if ctx.Err() != nil {
			c.logger.Info().Msg("Upstream connector stopped")
			return nil
		}

		c.retries.Add(1)
		metrics.UpstreamReconnects.Inc()
		c.logger.Error().
			Err(err).
			Dur("retry_delay", c.opts.RetryDelay).
			Uint64("retries", c.retries.Load()).
			Msg("Upstream session ended, reconnecting")

		select {
		case <-time.After(c.opts.RetryDelay):
		case <-ctx.Done():
			c.logger.Info().Msg("Upstream connector stopped")
			return nil
		}
	}
}

// session runs one connect → subscribe → stream cycle and returns the
// error that ended it.
func (c *Connector) session(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	// Closing the socket is the only way to interrupt a blocked read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	c.state.Store(int32(StateSubscriptionPending))
	if err := c.subscribe(conn); err != nil {
		return err
	}

	c.state.Store(int32(StateStreaming))
	c.logger.Info().Str("program_id", c.opts.ProgramID).Msg("Streaming account changes")
	return c.streamLoop(conn)
}

// connect opens the transport-level connection to the upstream endpoint.
func (c *Connector) connect(ctx context.Context) (*websocket.Conn, error) {
	c.logger.Info().Str("url", c.opts.URL).Msg("Connecting to upstream")

	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, errors.NewConnectError(c.opts.URL, err)
	}
	return conn, nil
}

// rpcRequest is a JSON-RPC 2.0 request frame.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcFrame covers both the subscription acknowledgment and push
// notifications, which share a socket.
type rpcFrame struct {
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// subscribe sends the programSubscribe request and waits for the upstream
// to acknowledge it. A frame that is already a notification counts as
// confirmation; some endpoints start pushing before the ack is observed.
func (c *Connector) subscribe(conn *websocket.Conn) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "programSubscribe",
		Params: []any{
			c.opts.ProgramID,
			map[string]string{"encoding": "base64", "commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return errors.NewConnectError(c.opts.URL, fmt.Errorf("sending subscription: %w", err))
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading subscription ack: %w", err)
	}

	var frame rpcFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("malformed subscription ack: %w", err)
	}
	switch {
	case frame.Error != nil:
		return errors.NewSubscriptionError(frame.Error.Code, frame.Error.Message)
	case frame.Method != "":
		// Already a notification; the subscription is live.
		c.handleFrame(raw)
		return nil
	case frame.Result != nil:
		c.logger.Info().RawJSON("subscription", frame.Result).Msg("Subscription confirmed")
		return nil
	default:
		return errors.NewSubscriptionError(0, "ack carried neither result nor error")
	}
}

// streamLoop reads frames until the connection fails or is closed.
// Payload-level problems are the transformer's concern and never end the
// loop; only transport errors do.
func (c *Connector) streamLoop(conn *websocket.Conn) error {
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("upstream read: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.handleFrame(raw)
	}
}

// handleFrame transforms one raw notification and publishes the result.
// Rejections are logged and skipped; the stream never halts over one
// unparseable message.
func (c *Connector) handleFrame(raw []byte) {
	metrics.NotificationsReceived.Inc()

	ev, err := c.transformer.Transform(raw)
	if err != nil {
		var rej *errors.RejectionError
		if errors.As(err, &rej) {
			metrics.EventsRejected.WithLabelValues(rej.Stage).Inc()
		}
		c.logger.Warn().Err(err).Msg("Notification rejected")
		return
	}

	c.sink.Publish(ev)
}
