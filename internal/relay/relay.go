// Package relay implements the content relay: it bridges the page message
// channel and the broker runtime channel, and intercepts clicks on
// cryptocurrency payment links.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/metrics"
	"github.com/mrz1836/sigil-bridge/internal/page"
	"github.com/mrz1836/sigil-bridge/internal/pending"
	"github.com/mrz1836/sigil-bridge/internal/uri"
)

// ErrStopped is returned for requests that arrive after Stop.
var ErrStopped = errors.New("relay: stopped")

// Runtime is the request/reply channel to the broker.
type Runtime interface {
	SendMessage(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error)
}

// Logger is the logging surface used by the relay.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the relay settings.
type Config struct {
	Runtime        Runtime
	Schemes        *uri.Schemes
	ForwardTimeout time.Duration
	Clock          clock.Clock
	Logger         Logger
	Metrics        *metrics.Metrics
}

// Relay forwards page requests to the broker and posts the replies back.
type Relay struct {
	win     *page.Window
	runtime Runtime
	schemes *uri.Schemes
	timeout time.Duration
	clock   clock.Clock
	log     Logger
	metrics *metrics.Metrics

	gm       *fn.GoroutineManager
	inflight *pending.Table

	mu      sync.Mutex
	detach  []func()
	started bool
}

// New creates a relay for win. Call Start to attach it.
func New(win *page.Window, cfg Config) *Relay {
	if cfg.Schemes == nil {
		cfg.Schemes = uri.DefaultSchemes()
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = config.DefaultForwardTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = config.NullLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}

	return &Relay{
		win:      win,
		runtime:  cfg.Runtime,
		schemes:  cfg.Schemes,
		timeout:  cfg.ForwardTimeout,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		gm:       fn.NewGoroutineManager(),
		inflight: pending.NewTable(),
	}
}

// Start attaches the page listener and the document click listener.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true
	r.detach = append(r.detach,
		r.win.AddListener(r.onMessage),
		r.win.Document().AddClickListener(r.onClick),
	)
}

// Stop detaches the listeners and waits for in-flight forwards to finish.
// Requests still waiting on the broker receive RELAY_UNAVAILABLE.
func (r *Relay) Stop() {
	r.mu.Lock()
	detach := r.detach
	r.detach = nil
	r.mu.Unlock()

	for _, d := range detach {
		d()
	}
	r.gm.Stop()
	r.inflight.CancelAll(ErrStopped)
}

// InFlight returns the number of requests awaiting a broker reply.
func (r *Relay) InFlight() int {
	return r.inflight.Len()
}

func (r *Relay) onMessage(ev page.Event) {
	msg := ev.Data

	// Our own replies come back through the same channel.
	if ev.Source == r.win && msg.Source == envelope.SourceContent {
		return
	}

	switch {
	case ev.Source != r.win:
		r.drop(msg, "foreign window "+ev.Origin)
		return
	case msg.Source != envelope.SourcePage:
		r.drop(msg, "source tag "+msg.Source)
		return
	case msg.Kind == "" || msg.Kind.IsReply():
		r.drop(msg, "not a request")
		return
	case msg.Kind.Privileged():
		r.drop(msg, "privileged kind from page")
		return
	}

	r.forward(msg)
}

func (r *Relay) drop(msg envelope.Envelope, reason string) {
	r.metrics.RecordUnauthorized()
	r.log.Debug("relay: dropped %s %s: %s", msg.Kind, msg.CorrelationID, reason)
}

func (r *Relay) meta() *envelope.RelayMeta {
	return &envelope.RelayMeta{
		Origin:     r.win.Origin(),
		Frame:      r.win.Name(),
		ReceivedAt: r.clock.Now(),
	}
}

func (r *Relay) forward(req envelope.Envelope) {
	req.Relay = r.meta()
	start := req.Relay.ReceivedAt

	c := pending.NewCall(req.CorrelationID, req.Kind, start)
	if !r.inflight.Add(c) {
		r.log.Debug("relay: %s %s already in flight", req.Kind, req.CorrelationID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	ok := r.gm.Go(ctx, func(ctx context.Context) {
		defer cancel()
		defer r.inflight.Remove(c)

		reply := r.roundTrip(ctx, req)
		c.Resolve(reply)
		r.post(reply)
	})
	if !ok {
		cancel()
		r.inflight.Remove(c)
		r.post(envelope.ErrorReply(req, envelope.SourceContent, envelope.CodeRelayUnavailable, ErrStopped.Error()))
	}
}

// roundTrip sends req to the broker and always returns a reply addressed to
// req. A forwarding failure becomes a RELAY_UNAVAILABLE error reply.
func (r *Relay) roundTrip(ctx context.Context, req envelope.Envelope) envelope.Envelope {
	start := r.clock.Now()

	var (
		reply envelope.Envelope
		err   error
	)
	if r.runtime == nil {
		err = ErrStopped
	} else {
		reply, err = r.runtime.SendMessage(ctx, req)
	}
	r.metrics.RecordRelay(r.clock.Now().Sub(start), err)

	if err != nil {
		r.log.Error("relay: forwarding %s %s failed: %v", req.Kind, req.CorrelationID, err)
		return envelope.ErrorReply(req, envelope.SourceContent, envelope.CodeRelayUnavailable, err.Error())
	}

	if !reply.Kind.IsReply() || reply.Kind.Request() != req.Kind {
		reply.Kind = req.Kind.Result()
	}
	reply.CorrelationID = req.CorrelationID
	reply.Source = envelope.SourceContent
	reply.Relay = nil
	return reply
}

func (r *Relay) post(reply envelope.Envelope) {
	if err := r.win.PostMessage(reply); err != nil {
		r.log.Debug("relay: posting %s %s: %v", reply.Kind, reply.CorrelationID, err)
	}
}

func (r *Relay) onClick(ev *page.ClickEvent) {
	href := ev.Href()
	if href == "" {
		return
	}
	scheme, ok := r.schemes.Match(href)
	if !ok {
		return
	}
	ev.PreventDefault()
	r.metrics.RecordLinkIntercepted()

	env, err := envelope.New(envelope.KindLinkIntercepted, envelope.SourceContent, envelope.LinkPayload{
		Scheme: scheme,
		URI:    href,
	})
	if err != nil {
		r.log.Error("relay: building link message: %v", err)
		return
	}
	env.Relay = r.meta()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	ok = r.gm.Go(ctx, func(ctx context.Context) {
		defer cancel()
		if r.runtime == nil {
			return
		}
		if _, err := r.runtime.SendMessage(ctx, env); err != nil {
			r.log.Error("relay: link %s not delivered: %v", scheme, err)
		}
	})
	if !ok {
		cancel()
	}
}
