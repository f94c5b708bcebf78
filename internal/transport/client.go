package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/pending"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// Option configures a Client or a surface attachment.
type Option func(*options)

type options struct {
	header http.Header
	logger Logger
}

// WithOrigin sets the Origin header sent on the websocket handshake.
func WithOrigin(origin string) Option {
	return func(o *options) {
		o.header.Set("Origin", origin)
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		header: make(http.Header),
		logger: config.NullLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func dial(ctx context.Context, url string, o *options) (*conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, o.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, bridgeerr.Wrap(bridgeerr.ErrRelayUnavailable, "dial %s: %s", url, resp.Status)
		}
		return nil, bridgeerr.Wrap(bridgeerr.ErrRelayUnavailable, "dial %s: %v", url, err)
	}
	return newConn(ws), nil
}

// Client is a relay-side connection to the broker service. It implements
// relay.Runtime.
type Client struct {
	c     *conn
	log   Logger
	calls *pending.Table
	gm    *fn.GoroutineManager
}

// Dial connects to the broker service runtime endpoint at url
// (ws://host:port/runtime).
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	c, err := dial(ctx, url, o)
	if err != nil {
		return nil, err
	}

	cl := &Client{
		c:     c,
		log:   o.logger,
		calls: pending.NewTable(),
		gm:    fn.NewGoroutineManager(),
	}
	cl.gm.Go(context.Background(), cl.readLoop)
	return cl, nil
}

// SendMessage writes req and waits for the reply with the same correlation id.
func (cl *Client) SendMessage(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = envelope.NewCorrelationID()
	}

	call := pending.NewCall(req.CorrelationID, req.Kind, time.Now())
	if !cl.calls.Add(call) {
		return envelope.Envelope{}, fmt.Errorf("%w: duplicate correlation id %s", bridgeerr.ErrInvalidInput, req.CorrelationID)
	}
	defer cl.calls.Remove(call)

	if err := cl.c.write(req); err != nil {
		return envelope.Envelope{}, bridgeerr.Wrap(bridgeerr.ErrRelayUnavailable, "send %s: %v", req.Kind, err)
	}

	select {
	case <-call.Done():
	case <-ctx.Done():
		call.Cancel(ctx.Err())
	case <-cl.c.done():
		call.Cancel(bridgeerr.ErrRelayUnavailable)
	}
	return call.Result()
}

// Done is closed when the connection ends.
func (cl *Client) Done() <-chan struct{} {
	return cl.c.done()
}

// Close ends the connection. Waiting calls fail with ErrRelayUnavailable.
func (cl *Client) Close() error {
	cl.c.close()
	cl.gm.Stop()
	cl.calls.CancelAll(bridgeerr.ErrRelayUnavailable)
	return nil
}

func (cl *Client) readLoop(ctx context.Context) {
	defer func() {
		cl.c.close()
		cl.calls.CancelAll(bridgeerr.ErrRelayUnavailable)
	}()

	// Closing the socket unblocks read once the manager stops.
	go func() {
		select {
		case <-ctx.Done():
			cl.c.close()
		case <-cl.c.done():
		}
	}()

	for {
		data, err := cl.c.read()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, ErrClosed) {
				cl.log.Debug("transport: runtime read: %v", err)
			}
			return
		}

		reply, err := envelope.Decode(data)
		if err != nil {
			cl.log.Debug("transport: dropping malformed reply: %v", err)
			continue
		}

		call, ok := cl.calls.Lookup(reply.CorrelationID)
		if !ok || !call.Resolve(reply) {
			cl.log.Debug("transport: no waiter for %s %s", reply.Kind, reply.CorrelationID)
		}
	}
}
