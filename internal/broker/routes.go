package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/uri"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// Route names the handler that serves a request kind.
type Route int

// Routes.
const (
	RouteUnhandled Route = iota
	RouteOpenWalletTab
	RouteGetConfig
	RouteLinkIntercepted
	RouteWallet
)

// String implements fmt.Stringer.
func (r Route) String() string {
	switch r {
	case RouteOpenWalletTab:
		return "open-wallet-tab"
	case RouteGetConfig:
		return "get-config"
	case RouteLinkIntercepted:
		return "link-intercepted"
	case RouteWallet:
		return "wallet"
	case RouteUnhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}

// Classify maps every kind to a route. Kinds without a handler, replies
// included, map to RouteUnhandled.
func Classify(kind envelope.Kind) Route {
	switch kind {
	case envelope.KindOpenWalletTab:
		return RouteOpenWalletTab
	case envelope.KindGetConfig:
		return RouteGetConfig
	case envelope.KindLinkIntercepted:
		return RouteLinkIntercepted
	case envelope.KindConnect, envelope.KindGetAddress,
		envelope.KindSignTransaction, envelope.KindDisconnect:
		return RouteWallet
	default:
		return RouteUnhandled
	}
}

// errInvalidRequest marks requests whose payload cannot be served.
var errInvalidRequest = errors.New("invalid request")

func (b *Broker) route(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	if req.Kind.Privileged() && req.Source == envelope.SourcePage {
		b.metrics.RecordUnauthorized()
		return envelope.Envelope{}, fmt.Errorf("%w: %s from page", bridgeerr.ErrUnauthorizedSource, req.Kind)
	}

	switch Classify(req.Kind) {
	case RouteOpenWalletTab:
		return b.handleOpenWalletTab(ctx, req)
	case RouteGetConfig:
		return envelope.Reply(req, envelope.SourceBackground, b.Config())
	case RouteLinkIntercepted:
		return b.handleLink(ctx, req)
	case RouteWallet:
		return b.handleWallet(ctx, req)
	case RouteUnhandled:
		b.log.Debug("broker: no handler for %s, acknowledging", req.Kind)
		return envelope.Reply(req, envelope.SourceBackground, envelope.AckPayload{Success: true, Forwarded: true})
	default:
		return envelope.Envelope{}, fmt.Errorf("%w: %s", bridgeerr.ErrUnknownOperation, req.Kind)
	}
}

func (b *Broker) handleOpenWalletTab(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	if err := b.openTab(ctx, b.walletURL); err != nil {
		b.log.Error("broker: opening wallet tab: %v", err)
		return envelope.Reply(req, envelope.SourceBackground, envelope.AckPayload{Error: err.Error()})
	}
	return envelope.Reply(req, envelope.SourceBackground, envelope.AckPayload{Success: true})
}

func (b *Broker) handleLink(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	var link envelope.LinkPayload
	if err := req.DecodePayload(&link); err != nil {
		return envelope.Envelope{}, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	if link.URI == "" {
		return envelope.Envelope{}, fmt.Errorf("%w: link without uri", errInvalidRequest)
	}

	// Parsing is informational; unparseable links still reach the wallet.
	if p, err := uri.Parse(link.URI, b.schemes); err == nil {
		b.log.Debug("broker: link %s to %s amount=%q", p.Scheme, p.Address, p.Amount)
	} else {
		b.log.Debug("broker: link %s not parseable: %v", link.Scheme, err)
	}

	target, err := linkTarget(b.walletURL, link.URI)
	if err != nil {
		return envelope.Envelope{}, err
	}
	if err := b.openTab(ctx, target); err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.Reply(req, envelope.SourceBackground, envelope.AckPayload{Success: true})
}

// linkTarget returns the wallet URL with link set as the uri query parameter.
func linkTarget(walletURL, link string) (string, error) {
	u, err := url.Parse(walletURL)
	if err != nil {
		return "", fmt.Errorf("parsing wallet url: %w", err)
	}
	q := u.Query()
	q.Set("uri", link)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *Broker) handleWallet(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	origin := ""
	if req.Relay != nil {
		origin = req.Relay.Origin
	}
	if !b.allowlist.Allowed(origin) {
		b.log.Debug("broker: %s from %q refused by allowlist", req.Kind, origin)
		return envelope.Envelope{}, bridgeerr.WithDetails(bridgeerr.ErrOriginNotAllowed, map[string]string{"origin": origin})
	}

	surface := b.Surface()
	if surface == nil {
		if req.Kind == envelope.KindDisconnect {
			return envelope.Reply(req, envelope.SourceBackground, envelope.AckPayload{Success: true})
		}
		if err := b.openTab(ctx, b.walletURL); err != nil {
			b.log.Error("broker: opening wallet tab: %v", err)
		}
		return envelope.Envelope{}, bridgeerr.ErrWalletUnavailable
	}

	switch req.Kind {
	case envelope.KindConnect:
		addr, err := surface.Connect(ctx, origin)
		if err != nil {
			return envelope.Envelope{}, err
		}
		return envelope.Reply(req, envelope.SourceBackground, envelope.AddressPayload{Address: addr})

	case envelope.KindGetAddress:
		addr, err := surface.Address(ctx, origin)
		if err != nil {
			return envelope.Envelope{}, err
		}
		return envelope.Reply(req, envelope.SourceBackground, envelope.AddressPayload{Address: addr})

	case envelope.KindSignTransaction:
		var sr envelope.SignRequest
		if err := req.DecodePayload(&sr); err != nil {
			return envelope.Envelope{}, fmt.Errorf("%w: %w", errInvalidRequest, err)
		}
		signed, err := surface.SignTransaction(ctx, origin, sr.Transaction)
		if err != nil {
			return envelope.Envelope{}, err
		}
		return envelope.Reply(req, envelope.SourceBackground, envelope.SignResult{SignedTransaction: signed})

	default:
		if err := surface.Disconnect(ctx, origin); err != nil {
			return envelope.Envelope{}, err
		}
		return envelope.Reply(req, envelope.SourceBackground, envelope.AckPayload{Success: true})
	}
}

// replyCode maps a handler error onto a wire error code.
func replyCode(err error) string {
	var se *bridgeerr.BridgeError
	switch {
	case errors.Is(err, errInvalidRequest):
		return envelope.CodeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return envelope.CodeWalletUnavailable
	case errors.As(err, &se):
		if _, ok := bridgeerr.Lookup(se.Code); ok {
			return se.Code
		}
	}
	return envelope.CodeHandlerFailed
}
