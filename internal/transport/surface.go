package transport

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/mrz1836/sigil-bridge/internal/broker"
	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/pending"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// RemoteSurface is a wallet surface connected to the service over a
// websocket. Each surface call becomes a request envelope sent to the
// surface and completes when the matching reply arrives.
type RemoteSurface struct {
	c     *conn
	calls *pending.Table
}

var _ broker.Surface = (*RemoteSurface)(nil)

func newRemoteSurface(c *conn) *RemoteSurface {
	return &RemoteSurface{c: c, calls: pending.NewTable()}
}

// Connect implements broker.Surface.
func (r *RemoteSurface) Connect(ctx context.Context, origin string) (string, error) {
	reply, err := r.call(ctx, envelope.KindConnect, origin, nil)
	if err != nil {
		return "", err
	}
	return decodeAddress(reply)
}

// Address implements broker.Surface.
func (r *RemoteSurface) Address(ctx context.Context, origin string) (string, error) {
	reply, err := r.call(ctx, envelope.KindGetAddress, origin, nil)
	if err != nil {
		return "", err
	}
	return decodeAddress(reply)
}

// SignTransaction implements broker.Surface.
func (r *RemoteSurface) SignTransaction(ctx context.Context, origin, tx string) (string, error) {
	reply, err := r.call(ctx, envelope.KindSignTransaction, origin, envelope.SignRequest{Transaction: tx})
	if err != nil {
		return "", err
	}
	var res envelope.SignResult
	if err := reply.DecodePayload(&res); err != nil {
		return "", bridgeerr.Wrap(bridgeerr.ErrRequestFailed, "decode sign result: %v", err)
	}
	return res.SignedTransaction, nil
}

// Disconnect implements broker.Surface.
func (r *RemoteSurface) Disconnect(ctx context.Context, origin string) error {
	_, err := r.call(ctx, envelope.KindDisconnect, origin, nil)
	return err
}

func (r *RemoteSurface) call(ctx context.Context, kind envelope.Kind, origin string, payload any) (envelope.Envelope, error) {
	req, err := envelope.New(kind, envelope.SourceBackground, payload)
	if err != nil {
		return envelope.Envelope{}, err
	}
	req.Relay = &envelope.RelayMeta{Origin: origin, ReceivedAt: time.Now()}

	c := pending.NewCall(req.CorrelationID, kind, req.Relay.ReceivedAt)
	r.calls.Add(c)
	defer r.calls.Remove(c)

	if err := r.c.write(req); err != nil {
		return envelope.Envelope{}, bridgeerr.Wrap(bridgeerr.ErrWalletUnavailable, "send %s: %v", kind, err)
	}

	select {
	case <-c.Done():
	case <-ctx.Done():
		c.Cancel(ctx.Err())
	case <-r.c.done():
		c.Cancel(bridgeerr.ErrWalletUnavailable)
	}

	reply, err := c.Result()
	if err != nil {
		return envelope.Envelope{}, err
	}
	if reply.Kind.IsError() {
		return envelope.Envelope{}, replyError(reply)
	}
	return reply, nil
}

func (r *RemoteSurface) resolve(reply envelope.Envelope) bool {
	c, ok := r.calls.Lookup(reply.CorrelationID)
	if !ok || reply.Kind.Request() != c.Kind {
		return false
	}
	return c.Resolve(reply)
}

func (r *RemoteSurface) shutdown() {
	r.c.close()
	r.calls.CancelAll(bridgeerr.ErrWalletUnavailable)
}

func decodeAddress(reply envelope.Envelope) (string, error) {
	var a envelope.AddressPayload
	if err := reply.DecodePayload(&a); err != nil {
		return "", bridgeerr.Wrap(bridgeerr.ErrRequestFailed, "decode address: %v", err)
	}
	return a.Address, nil
}

// AttachSurface connects s to the service surface endpoint at url
// (ws://host:port/surface) and serves wallet requests until ctx is done or
// the connection ends.
func AttachSurface(ctx context.Context, url string, s broker.Surface, opts ...Option) error {
	o := buildOptions(opts)
	c, err := dial(ctx, url, o)
	if err != nil {
		return err
	}
	defer c.close()

	gm := fn.NewGoroutineManager()
	defer gm.Stop()

	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done():
		}
	}()

	for {
		data, err := c.read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, ErrClosed) {
				return nil
			}
			return bridgeerr.Wrap(bridgeerr.ErrRelayUnavailable, "surface connection: %v", err)
		}

		req, err := envelope.Decode(data)
		if err != nil || req.Kind.IsReply() {
			o.logger.Debug("transport: surface ignoring message: %v", err)
			continue
		}

		gm.Go(ctx, func(ctx context.Context) {
			reply := serveSurfaceRequest(ctx, s, req)
			if err := c.write(reply); err != nil {
				o.logger.Debug("transport: surface reply %s: %v", reply.Kind, err)
			}
		})
	}
}

func serveSurfaceRequest(ctx context.Context, s broker.Surface, req envelope.Envelope) (reply envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			reply = envelope.ErrorReply(req, envelope.SourceContent, envelope.CodeHandlerFailed, "surface panicked")
		}
	}()

	origin := ""
	if req.Relay != nil {
		origin = req.Relay.Origin
	}

	var (
		payload any
		err     error
	)
	switch req.Kind {
	case envelope.KindConnect:
		var addr string
		addr, err = s.Connect(ctx, origin)
		payload = envelope.AddressPayload{Address: addr}
	case envelope.KindGetAddress:
		var addr string
		addr, err = s.Address(ctx, origin)
		payload = envelope.AddressPayload{Address: addr}
	case envelope.KindSignTransaction:
		var sr envelope.SignRequest
		if err = req.DecodePayload(&sr); err != nil {
			return envelope.ErrorReply(req, envelope.SourceContent, envelope.CodeInvalidRequest, err.Error())
		}
		var signed string
		signed, err = s.SignTransaction(ctx, origin, sr.Transaction)
		payload = envelope.SignResult{SignedTransaction: signed}
	case envelope.KindDisconnect:
		err = s.Disconnect(ctx, origin)
		payload = envelope.AckPayload{Success: err == nil}
	default:
		return envelope.ErrorReply(req, envelope.SourceContent, envelope.CodeInvalidRequest, "unsupported surface operation")
	}

	if err != nil {
		return envelope.ErrorReply(req, envelope.SourceContent, errorCode(err), err.Error())
	}
	reply, err = envelope.Reply(req, envelope.SourceContent, payload)
	if err != nil {
		return envelope.ErrorReply(req, envelope.SourceContent, envelope.CodeHandlerFailed, err.Error())
	}
	return reply
}
