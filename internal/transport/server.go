package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrz1836/sigil-bridge/internal/broker"
	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/metrics"
	"github.com/mrz1836/sigil-bridge/internal/origin"
)

// Endpoint paths served by Server.
const (
	PathRuntime = "/runtime"
	PathSurface = "/surface"
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ServerConfig holds the service settings.
type ServerConfig struct {
	// Broker serves runtime requests and receives the surface. Required.
	Broker *broker.Broker

	// Allowlist checks the Origin header of browser clients. Requests
	// without an Origin header come from local processes and are accepted.
	Allowlist *origin.Allowlist

	// Limiter throttles runtime messages per peer. Nil disables limiting.
	Limiter *RateLimiter

	// ForwardTimeout bounds each runtime request.
	ForwardTimeout time.Duration

	Logger  Logger
	Metrics *metrics.Metrics
}

// Server is the broker websocket service.
type Server struct {
	broker    *broker.Broker
	allowlist *origin.Allowlist
	limiter   *RateLimiter
	timeout   time.Duration
	log       Logger
	metrics   *metrics.Metrics

	runtimeUpgrader websocket.Upgrader
	surfaceUpgrader websocket.Upgrader

	mux *http.ServeMux
	gm  *fn.GoroutineManager
}

// NewServer creates the service. It does not listen until Serve is called.
func NewServer(cfg ServerConfig) *Server {
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = config.DefaultForwardTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = config.NullLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}

	s := &Server{
		broker:    cfg.Broker,
		allowlist: cfg.Allowlist,
		limiter:   cfg.Limiter,
		timeout:   cfg.ForwardTimeout,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		mux:       http.NewServeMux(),
		gm:        fn.NewGoroutineManager(),
	}
	s.runtimeUpgrader = websocket.Upgrader{CheckOrigin: s.checkRuntimeOrigin}
	s.surfaceUpgrader = websocket.Upgrader{CheckOrigin: s.checkSurfaceOrigin}

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(cfg.Metrics))

	s.mux.HandleFunc(PathRuntime, s.handleRuntime)
	s.mux.HandleFunc(PathSurface, s.handleSurface)
	s.mux.HandleFunc(PathHealth, s.handleHealth)
	s.mux.Handle(PathMetrics, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the HTTP handler for all endpoints.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		s.gm.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websockets are not tracked by Shutdown; the manager stops them.
	s.gm.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close stops in-flight request handlers.
func (s *Server) Close() {
	s.gm.Stop()
}

func (s *Server) checkRuntimeOrigin(r *http.Request) bool {
	o := r.Header.Get("Origin")
	if o == "" || s.allowlist == nil {
		return true
	}
	return s.allowlist.Allowed(o)
}

func (s *Server) checkSurfaceOrigin(r *http.Request) bool {
	o := r.Header.Get("Origin")
	if o == "" || s.allowlist == nil {
		return true
	}
	return s.allowlist.IsWallet(o)
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	ws, err := s.runtimeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("transport: runtime upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	c := newConn(ws)
	peer := peerKey(r.RemoteAddr)
	browserOrigin := r.Header.Get("Origin")
	s.log.Debug("transport: runtime client %s connected", peer)

	ctx, cancel := context.WithCancel(r.Context())
	stop := s.watch(ctx, c)
	defer func() {
		stop()
		cancel()
		c.close()
		s.log.Debug("transport: runtime client %s disconnected", peer)
	}()

	for {
		data, err := c.read()
		if err != nil {
			return
		}
		req, err := envelope.Decode(data)
		if err != nil {
			s.log.Debug("transport: dropping malformed message from %s: %v", peer, err)
			continue
		}
		if req.Kind.IsReply() {
			continue
		}
		// Browser peers speak for a page and cannot start privileged actions.
		if browserOrigin != "" && req.Kind.Privileged() {
			s.metrics.RecordUnauthorized()
			s.log.Debug("transport: dropping %s from browser peer %s", req.Kind, browserOrigin)
			continue
		}

		if s.limiter != nil && !s.limiter.Allow(peer) {
			s.metrics.RecordRateLimited()
			_ = c.write(envelope.ErrorReply(req, envelope.SourceBackground, envelope.CodeRateLimited, "too many requests"))
			continue
		}

		// A browser peer cannot choose the origin it speaks for.
		if browserOrigin != "" {
			if req.Relay == nil {
				req.Relay = &envelope.RelayMeta{ReceivedAt: time.Now()}
			}
			req.Relay.Origin = browserOrigin
		}

		started := s.gm.Go(ctx, func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			reply, err := s.broker.SendMessage(ctx, req)
			if err != nil {
				reply = envelope.ErrorReply(req, envelope.SourceBackground, envelope.CodeRelayUnavailable, err.Error())
			}
			if err := c.write(reply); err != nil {
				s.log.Debug("transport: reply %s to %s: %v", reply.Kind, peer, err)
			}
		})
		if !started {
			return
		}
	}
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	ws, err := s.surfaceUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("transport: surface upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	c := newConn(ws)
	rs := newRemoteSurface(c)
	s.broker.SetSurface(rs)
	s.log.Debug("transport: wallet surface %s attached", r.RemoteAddr)

	stop := s.watch(r.Context(), c)
	defer func() {
		stop()
		s.broker.DetachSurface(rs)
		rs.shutdown()
		s.log.Debug("transport: wallet surface %s detached", r.RemoteAddr)
	}()

	for {
		data, err := c.read()
		if err != nil {
			return
		}
		reply, err := envelope.Decode(data)
		if err != nil {
			s.log.Debug("transport: dropping malformed surface message: %v", err)
			continue
		}
		if !rs.resolve(reply) {
			s.log.Debug("transport: surface reply %s %s has no waiter", reply.Kind, reply.CorrelationID)
		}
	}
}

// watch closes c when the server stops. The returned func ends the watch.
func (s *Server) watch(ctx context.Context, c *conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-s.gm.Done():
			c.close()
		case <-ctx.Done():
			c.close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// peerKey returns the host part of a remote address. Rate limits follow the
// host so reconnecting does not refill the bucket.
func peerKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

type health struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Surface bool   `json:"surface"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health{
		Status:  "ok",
		State:   s.broker.State().String(),
		Surface: s.broker.Surface() != nil,
	})
}
