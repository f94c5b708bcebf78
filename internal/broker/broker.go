// Package broker implements the background broker: it routes relay requests
// to handlers, owns the wallet tab registry and the immutable configuration
// snapshot, and keeps itself alive with a heartbeat while ready.
package broker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/metrics"
	"github.com/mrz1836/sigil-bridge/internal/origin"
	"github.com/mrz1836/sigil-bridge/internal/tabs"
	"github.com/mrz1836/sigil-bridge/internal/uri"
)

// Install reasons passed to OnInstalled.
const (
	ReasonInstall            = "install"
	ReasonUpdate             = "update"
	ReasonChromeUpdate       = "chrome_update"
	ReasonSharedModuleUpdate = "shared_module_update"
)

// ErrNoWalletURL is returned by New without a wallet URL.
var ErrNoWalletURL = errors.New("broker: wallet url required")

// State is the broker liveness state.
type State int32

// Liveness states.
const (
	StateStarting State = iota
	StateReady
	StateSuspended
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Surface is the wallet UI that serves wallet operations. Every call carries
// the origin of the requesting page.
type Surface interface {
	Connect(ctx context.Context, origin string) (string, error)
	Address(ctx context.Context, origin string) (string, error)
	SignTransaction(ctx context.Context, origin, tx string) (string, error)
	Disconnect(ctx context.Context, origin string) error
}

// Logger is the logging surface used by the broker.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the broker settings.
type Config struct {
	// WalletURL is the wallet UI address. Required.
	WalletURL string

	// Allowlist gates wallet operations. Defaults to the built-in patterns.
	Allowlist *origin.Allowlist

	// Tabs records opened wallet tabs. Defaults to a registry without a
	// launcher.
	Tabs *tabs.Registry

	// Surface serves wallet operations. It may be attached later.
	Surface Surface

	// KeepAlive drives heartbeats. Defaults to a ticker at the default
	// keep-alive interval.
	KeepAlive ticker.Ticker

	// Schemes is used to describe intercepted links in logs.
	Schemes *uri.Schemes

	// Version is the running version, logged on update.
	Version string

	Logger  Logger
	Metrics *metrics.Metrics
}

// Broker is the background broker. It implements relay.Runtime.
type Broker struct {
	walletURL string
	snapshot  envelope.ConfigPayload
	allowlist *origin.Allowlist
	tabs      *tabs.Registry
	schemes   *uri.Schemes
	version   string
	log       Logger
	metrics   *metrics.Metrics

	surfaceMu sync.RWMutex
	surface   Surface

	state     atomic.Int32
	keepAlive ticker.Ticker

	// wake asks keepAliveLoop to re-read the state. The ticker is only
	// touched from that goroutine.
	wake chan struct{}

	installOnce sync.Once
	startOnce   sync.Once
	stopOnce    sync.Once
	quit        chan struct{}
	wg          sync.WaitGroup
}

// New creates a broker in the starting state.
func New(cfg Config) (*Broker, error) {
	if cfg.WalletURL == "" {
		return nil, ErrNoWalletURL
	}
	if cfg.Allowlist == nil {
		al, err := origin.New(cfg.WalletURL, config.DefaultAllowedOrigins)
		if err != nil {
			return nil, fmt.Errorf("broker: default allowlist: %w", err)
		}
		cfg.Allowlist = al
	}
	if cfg.Tabs == nil {
		cfg.Tabs = tabs.NewRegistry(cfg.WalletURL, nil, nil)
	}
	if cfg.KeepAlive == nil {
		cfg.KeepAlive = ticker.New(config.DefaultKeepAliveInterval)
	}
	if cfg.Schemes == nil {
		cfg.Schemes = uri.DefaultSchemes()
	}
	if cfg.Logger == nil {
		cfg.Logger = config.NullLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}

	b := &Broker{
		walletURL: cfg.WalletURL,
		snapshot: envelope.ConfigPayload{
			WalletURL:      cfg.WalletURL,
			AllowedOrigins: cfg.Allowlist.Patterns(),
		},
		allowlist: cfg.Allowlist,
		tabs:      cfg.Tabs,
		schemes:   cfg.Schemes,
		version:   cfg.Version,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		surface:   cfg.Surface,
		keepAlive: cfg.KeepAlive,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	b.state.Store(int32(StateStarting))
	return b, nil
}

// Start moves the broker to ready and starts the keep-alive loop.
func (b *Broker) Start() {
	b.startOnce.Do(func() {
		if !b.state.CompareAndSwap(int32(StateStarting), int32(StateReady)) {
			return
		}

		b.wg.Add(1)
		go b.keepAliveLoop()
		b.log.Debug("broker: ready, wallet at %s", b.walletURL)
	})
}

// Stop halts the keep-alive loop. Requests are still answered.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		b.state.Store(int32(StateStopped))
		close(b.quit)
		b.wg.Wait()
	})
}

// State returns the current liveness state.
func (b *Broker) State() State {
	return State(b.state.Load())
}

// Suspend pauses heartbeats. It reports whether the broker was ready.
func (b *Broker) Suspend() bool {
	if !b.state.CompareAndSwap(int32(StateReady), int32(StateSuspended)) {
		return false
	}
	b.signalKeepAlive()
	b.log.Debug("broker: suspended")
	return true
}

// Resume re-arms heartbeats after Suspend. It reports whether the broker was
// suspended.
func (b *Broker) Resume() bool {
	if !b.state.CompareAndSwap(int32(StateSuspended), int32(StateReady)) {
		return false
	}
	b.signalKeepAlive()
	b.log.Debug("broker: resumed")
	return true
}

// Config returns a copy of the configuration snapshot served by GET_CONFIG.
func (b *Broker) Config() envelope.ConfigPayload {
	out := b.snapshot
	out.AllowedOrigins = append([]string(nil), b.snapshot.AllowedOrigins...)
	return out
}

// Tabs returns the wallet tab registry.
func (b *Broker) Tabs() *tabs.Registry {
	return b.tabs
}

// SetSurface attaches s, replacing any previous surface. A nil s detaches.
func (b *Broker) SetSurface(s Surface) {
	b.surfaceMu.Lock()
	defer b.surfaceMu.Unlock()
	b.surface = s
}

// DetachSurface clears the surface only if s is still the attached one. It
// reports whether s was detached.
func (b *Broker) DetachSurface(s Surface) bool {
	b.surfaceMu.Lock()
	defer b.surfaceMu.Unlock()
	if b.surface != s {
		return false
	}
	b.surface = nil
	return true
}

// Surface returns the attached wallet surface, or nil.
func (b *Broker) Surface() Surface {
	b.surfaceMu.RLock()
	defer b.surfaceMu.RUnlock()
	return b.surface
}

// SendMessage handles req and returns its reply. Handler failures are
// returned as error replies, never as errors.
func (b *Broker) SendMessage(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	b.Resume()
	return b.Handle(ctx, req), nil
}

// Handle routes req to its handler and always returns a reply addressed to
// req.
func (b *Broker) Handle(ctx context.Context, req envelope.Envelope) (reply envelope.Envelope) {
	route := Classify(req.Kind)

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("broker: %s handler panicked: %v\n%s", req.Kind, r, debug.Stack())
			b.metrics.RecordBrokerRequest(false, fmt.Errorf("panic: %v", r))
			reply = envelope.ErrorReply(req, envelope.SourceBackground, envelope.CodeHandlerFailed, fmt.Sprint(r))
		}
	}()

	reply, err := b.route(ctx, req)
	b.metrics.RecordBrokerRequest(route == RouteUnhandled, err)
	if err != nil {
		b.log.Debug("broker: %s %s failed: %v", req.Kind, req.CorrelationID, err)
		return envelope.ErrorReply(req, envelope.SourceBackground, replyCode(err), err.Error())
	}

	reply.CorrelationID = req.CorrelationID
	reply.Source = envelope.SourceBackground
	return reply
}

// OnInstalled reacts to an install or update of the bridge. Install opens the
// wallet UI once per broker. Failures are logged and otherwise ignored.
func (b *Broker) OnInstalled(ctx context.Context, reason, previousVersion string) {
	switch reason {
	case ReasonInstall:
		b.installOnce.Do(func() {
			if err := b.openTab(ctx, b.walletURL); err != nil {
				b.log.Error("broker: opening wallet after install: %v", err)
				return
			}
			b.log.Debug("broker: installed, opened %s", b.walletURL)
		})
	case ReasonUpdate:
		b.log.Debug("broker: updated from %s to %s", orUnknown(previousVersion), orUnknown(b.version))
	default:
		b.log.Debug("broker: install event %q ignored", reason)
	}
}

func (b *Broker) openTab(ctx context.Context, url string) error {
	_, created, err := b.tabs.Open(ctx, url)
	if err != nil {
		return err
	}
	if created {
		b.metrics.RecordTabOpened()
	}
	return nil
}

// signalKeepAlive wakes keepAliveLoop without blocking. Pending wakes
// coalesce since the loop reads the latest state.
func (b *Broker) signalKeepAlive() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// applyKeepAlive pauses or re-arms the ticker to match the state. It must
// only run on the keepAliveLoop goroutine.
func (b *Broker) applyKeepAlive() {
	if b.State() == StateReady {
		b.keepAlive.Resume()
		return
	}
	b.keepAlive.Pause()
}

func (b *Broker) keepAliveLoop() {
	defer b.wg.Done()
	defer b.keepAlive.Stop()

	b.applyKeepAlive()
	for {
		// Ticks is re-read every pass so a resumed ticker is picked up.
		select {
		case <-b.keepAlive.Ticks():
			if b.State() != StateReady {
				continue
			}
			b.metrics.RecordHeartbeat()
			b.log.Debug("broker: heartbeat at %s", time.Now().UTC().Format(time.RFC3339))

		case <-b.wake:
			b.applyKeepAlive()

		case <-b.quit:
			return
		}
	}
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
