// Package provider implements the page-side wallet API. It turns each call
// into a request envelope posted on the page channel and waits for the reply
// carrying the same correlation id, or for the operation's deadline.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/metrics"
	"github.com/mrz1836/sigil-bridge/internal/page"
	"github.com/mrz1836/sigil-bridge/internal/pending"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// Version is reported to page code through Version().
const Version = "1.0.0"

// Logger is the logging surface used by the provider.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the provider settings. Zero values select the defaults.
type Config struct {
	Clock             clock.Clock
	ConnectTimeout    time.Duration
	GetAddressTimeout time.Duration
	SignTimeout       time.Duration
	Logger            Logger
	Metrics           *metrics.Metrics
}

// Provider is the object exposed to page scripts.
type Provider struct {
	win     *page.Window
	clock   clock.Clock
	log     Logger
	metrics *metrics.Metrics

	timeouts map[envelope.Kind]time.Duration
	calls    *pending.Table

	ready     chan struct{}
	readyOnce sync.Once
	detach    func()
}

// New attaches a provider to win. The provider listens for replies until
// Close is called.
func New(win *page.Window, cfg Config) *Provider {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = config.NullLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}

	p := &Provider{
		win:     win,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		timeouts: map[envelope.Kind]time.Duration{
			envelope.KindConnect:         orDefault(cfg.ConnectTimeout, config.DefaultConnectTimeout),
			envelope.KindGetAddress:      orDefault(cfg.GetAddressTimeout, config.DefaultGetAddressTimeout),
			envelope.KindSignTransaction: orDefault(cfg.SignTimeout, config.DefaultSignTimeout),
		},
		calls: pending.NewTable(),
		ready: make(chan struct{}),
	}
	p.detach = win.AddListener(p.onMessage)

	// Injection is complete once the listener is installed.
	p.readyOnce.Do(func() { close(p.ready) })

	return p
}

// IsInstalled always reports true; it lets page code feature-detect the
// provider.
func (p *Provider) IsInstalled() bool {
	return true
}

// Version returns the provider version.
func (p *Provider) Version() string {
	return Version
}

// Ready is closed once the provider is usable.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Outstanding returns the number of calls awaiting a reply.
func (p *Provider) Outstanding() int {
	return p.calls.Len()
}

// Close detaches the provider and cancels outstanding calls.
func (p *Provider) Close() {
	p.detach()
	p.calls.CancelAll(bridgeerr.ErrRelayUnavailable)
}

// Connect asks the wallet to connect and returns the active address.
func (p *Provider) Connect(ctx context.Context) (string, error) {
	reply, err := p.call(ctx, envelope.KindConnect, nil, bridgeerr.ErrConnectionTimeout)
	if err != nil {
		return "", err
	}
	return decodeAddress(reply)
}

// GetAddress returns the wallet's active address.
func (p *Provider) GetAddress(ctx context.Context) (string, error) {
	reply, err := p.call(ctx, envelope.KindGetAddress, nil, bridgeerr.ErrAddressTimeout)
	if err != nil {
		return "", err
	}
	return decodeAddress(reply)
}

// SignTransaction asks the wallet to sign tx. A decline from the user
// returns ErrUserRejected.
func (p *Provider) SignTransaction(ctx context.Context, tx string) (envelope.SignResult, error) {
	reply, err := p.call(ctx, envelope.KindSignTransaction, envelope.SignRequest{Transaction: tx}, bridgeerr.ErrSignTimeout)
	if err != nil {
		return envelope.SignResult{}, err
	}

	var res envelope.SignResult
	if err := reply.DecodePayload(&res); err != nil {
		return envelope.SignResult{}, bridgeerr.Wrap(bridgeerr.ErrRequestFailed, "decode sign result: %v", err)
	}
	return res, nil
}

// Disconnect notifies the wallet and returns once the message is enqueued.
// No reply is awaited.
func (p *Provider) Disconnect(_ context.Context) (bool, error) {
	env, err := envelope.New(envelope.KindDisconnect, envelope.SourcePage, nil)
	if err != nil {
		return false, err
	}
	if err := p.win.PostMessage(env); err != nil {
		return false, bridgeerr.Wrap(bridgeerr.ErrRelayUnavailable, "post disconnect: %v", err)
	}
	return true, nil
}

func (p *Provider) call(ctx context.Context, kind envelope.Kind, payload any, timeoutErr error) (envelope.Envelope, error) {
	env, err := envelope.New(kind, envelope.SourcePage, payload)
	if err != nil {
		return envelope.Envelope{}, bridgeerr.Wrap(bridgeerr.ErrInvalidInput, "build %s: %v", kind, err)
	}

	c := pending.NewCall(env.CorrelationID, kind, p.clock.Now())
	p.calls.Add(c)
	defer p.calls.Remove(c)

	// Arm the deadline before posting so a fast reply can never race it.
	deadline := p.clock.TickAfter(p.timeouts[kind])

	if err := p.win.PostMessage(env); err != nil {
		c.Reject(bridgeerr.Wrap(bridgeerr.ErrRelayUnavailable, "post %s: %v", kind, err))
	}

	select {
	case <-c.Done():
	case <-deadline:
		if c.Cancel(timeoutErr) {
			p.log.Debug("provider: %s %s timed out after %s", kind, c.CorrelationID, p.timeouts[kind])
		}
	case <-ctx.Done():
		c.Cancel(ctx.Err())
	}

	reply, err := c.Result()
	if err != nil {
		p.metrics.RecordProviderCall(errors.Is(err, bridgeerr.ErrTimeout), err)
		return envelope.Envelope{}, err
	}

	if reply.Kind.IsError() {
		err := replyError(reply)
		p.metrics.RecordProviderCall(false, err)
		return envelope.Envelope{}, err
	}

	p.metrics.RecordProviderCall(false, nil)
	return reply, nil
}

func (p *Provider) onMessage(ev page.Event) {
	msg := ev.Data
	// Only the relay in this same window answers calls.
	if ev.Source != p.win || msg.Source != envelope.SourceContent || !msg.Kind.IsReply() {
		return
	}
	// Disconnect is fire-and-forget; its acknowledgement has no waiter.
	if msg.Kind.Request() == envelope.KindDisconnect {
		return
	}

	c, ok := p.calls.Lookup(msg.CorrelationID)
	if !ok {
		p.metrics.RecordLateReply()
		p.log.Debug("provider: dropping %s for unknown call %s", msg.Kind, msg.CorrelationID)
		return
	}
	if msg.Kind.Request() != c.Kind {
		p.log.Debug("provider: %s does not answer %s %s", msg.Kind, c.Kind, msg.CorrelationID)
		return
	}
	if !c.Resolve(msg) {
		p.metrics.RecordLateReply()
		p.log.Debug("provider: dropping %s for settled call %s", msg.Kind, msg.CorrelationID)
	}
}

// replyError maps an error reply onto the page-visible error kinds.
func replyError(reply envelope.Envelope) error {
	info := reply.ErrorInfo()

	var err error
	switch info.Code {
	case envelope.CodeUserRejected:
		err = bridgeerr.ErrUserRejected
	case envelope.CodeRelayUnavailable:
		err = bridgeerr.ErrRelayUnavailable
	case envelope.CodeOriginNotAllowed:
		err = bridgeerr.ErrOriginNotAllowed
	case envelope.CodeWalletUnavailable:
		err = bridgeerr.ErrWalletUnavailable
	default:
		return bridgeerr.WithDetails(bridgeerr.ErrRequestFailed, map[string]string{
			"code":    info.Code,
			"message": info.Message,
		})
	}

	if info.Message != "" {
		return bridgeerr.Wrap(err, "%s", info.Message)
	}
	return err
}

func decodeAddress(reply envelope.Envelope) (string, error) {
	var a envelope.AddressPayload
	if err := reply.DecodePayload(&a); err != nil {
		return "", bridgeerr.Wrap(bridgeerr.ErrRequestFailed, "decode address: %v", err)
	}
	if a.Address == "" {
		return "", fmt.Errorf("%w: empty address", bridgeerr.ErrRequestFailed)
	}
	return a.Address, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
