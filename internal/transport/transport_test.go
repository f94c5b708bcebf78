package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-bridge/internal/broker"
	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/metrics"
	"github.com/mrz1836/sigil-bridge/internal/origin"
	"github.com/mrz1836/sigil-bridge/internal/page"
	"github.com/mrz1836/sigil-bridge/internal/provider"
	"github.com/mrz1836/sigil-bridge/internal/relay"
	"github.com/mrz1836/sigil-bridge/internal/transport"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

const (
	testWallet = "https://wallet.example/"
	testOrigin = "https://dapp.example"
	waitFor    = 3 * time.Second
)

type walletSurface struct {
	mu      sync.Mutex
	address string
	decline bool
	origins []string
}

func (w *walletSurface) seen(origin string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.origins = append(w.origins, origin)
}

func (w *walletSurface) Connect(_ context.Context, origin string) (string, error) {
	w.seen(origin)
	return w.address, nil
}

func (w *walletSurface) Address(_ context.Context, origin string) (string, error) {
	w.seen(origin)
	return w.address, nil
}

func (w *walletSurface) SignTransaction(_ context.Context, origin, tx string) (string, error) {
	w.seen(origin)
	if w.decline {
		return "", bridgeerr.ErrUserRejected
	}
	return "signed:" + tx, nil
}

func (w *walletSurface) Disconnect(_ context.Context, origin string) error {
	w.seen(origin)
	return nil
}

type service struct {
	broker  *broker.Broker
	server  *transport.Server
	http    *httptest.Server
	metrics *metrics.Metrics
}

func newService(t *testing.T, limiter *transport.RateLimiter) *service {
	t.Helper()

	al, err := origin.New(testWallet, []string{testOrigin})
	require.NoError(t, err)

	m := &metrics.Metrics{}
	b, err := broker.New(broker.Config{
		WalletURL: testWallet,
		Allowlist: al,
		KeepAlive: ticker.NewForce(time.Hour),
		Metrics:   m,
	})
	require.NoError(t, err)
	b.Start()
	t.Cleanup(b.Stop)

	srv := transport.NewServer(transport.ServerConfig{
		Broker:    b,
		Allowlist: al,
		Limiter:   limiter,
		Metrics:   m,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	return &service{broker: b, server: srv, http: ts, metrics: m}
}

func (s *service) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + path
}

func (s *service) dial(t *testing.T, opts ...transport.Option) *transport.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	cl, err := transport.Dial(ctx, s.wsURL(transport.PathRuntime), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl
}

func (s *service) attach(t *testing.T, w *walletSurface) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- transport.AttachSurface(ctx, s.wsURL(transport.PathSurface), w)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return s.broker.Surface() != nil
	}, waitFor, 5*time.Millisecond)
	return cancel
}

func request(t *testing.T, kind envelope.Kind, payload any) envelope.Envelope {
	t.Helper()
	env, err := envelope.New(kind, envelope.SourceContent, payload)
	require.NoError(t, err)
	env.Relay = &envelope.RelayMeta{Origin: testOrigin, Frame: "top"}
	return env
}

func TestClient_GetConfig(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	cl := svc.dial(t)

	req := request(t, envelope.KindGetConfig, nil)
	reply, err := cl.SendMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, envelope.KindGetConfig.Result(), reply.Kind)
	assert.Equal(t, req.CorrelationID, reply.CorrelationID)

	var cfg envelope.ConfigPayload
	require.NoError(t, reply.DecodePayload(&cfg))
	assert.Equal(t, testWallet, cfg.WalletURL)
}

func TestClient_ConcurrentRequests(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	cl := svc.dial(t)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := request(t, "NOT_A_ROUTE", nil)
			reply, err := cl.SendMessage(context.Background(), req)
			assert.NoError(t, err)
			assert.Equal(t, req.CorrelationID, reply.CorrelationID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), svc.metrics.Snapshot().BrokerUnhandled)
}

func TestSurface_RoundTrip(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	w := &walletSurface{address: "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"}
	svc.attach(t, w)
	cl := svc.dial(t)
	ctx := context.Background()

	reply, err := cl.SendMessage(ctx, request(t, envelope.KindGetAddress, nil))
	require.NoError(t, err)
	var addr envelope.AddressPayload
	require.NoError(t, reply.DecodePayload(&addr))
	assert.Equal(t, w.address, addr.Address)

	reply, err = cl.SendMessage(ctx, request(t, envelope.KindSignTransaction, envelope.SignRequest{Transaction: "tx"}))
	require.NoError(t, err)
	var signed envelope.SignResult
	require.NoError(t, reply.DecodePayload(&signed))
	assert.Equal(t, "signed:tx", signed.SignedTransaction)

	w.mu.Lock()
	assert.Equal(t, []string{testOrigin, testOrigin}, w.origins)
	w.mu.Unlock()
}

func TestSurface_DeclinePropagates(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	svc.attach(t, &walletSurface{decline: true})
	cl := svc.dial(t)

	reply, err := cl.SendMessage(context.Background(), request(t, envelope.KindSignTransaction, envelope.SignRequest{Transaction: "tx"}))
	require.NoError(t, err)
	assert.Equal(t, envelope.KindSignTransaction.Error(), reply.Kind)
	assert.Equal(t, envelope.CodeUserRejected, reply.ErrorInfo().Code)
}

func TestSurface_DetachesOnDisconnect(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	cancel := svc.attach(t, &walletSurface{address: "addr"})

	cancel()
	require.Eventually(t, func() bool {
		return svc.broker.Surface() == nil
	}, waitFor, 5*time.Millisecond)

	cl := svc.dial(t)
	reply, err := cl.SendMessage(context.Background(), request(t, envelope.KindGetAddress, nil))
	require.NoError(t, err)
	assert.Equal(t, envelope.CodeWalletUnavailable, reply.ErrorInfo().Code)
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()
	svc := newService(t, transport.NewRateLimiter(0.001, 1))
	cl := svc.dial(t)
	ctx := context.Background()

	reply, err := cl.SendMessage(ctx, request(t, envelope.KindGetConfig, nil))
	require.NoError(t, err)
	assert.Equal(t, envelope.KindGetConfig.Result(), reply.Kind)

	reply, err = cl.SendMessage(ctx, request(t, envelope.KindGetConfig, nil))
	require.NoError(t, err)
	assert.Equal(t, envelope.KindGetConfig.Error(), reply.Kind)
	assert.Equal(t, envelope.CodeRateLimited, reply.ErrorInfo().Code)
	assert.Equal(t, int64(1), svc.metrics.Snapshot().RateLimited)
}

func TestServer_RateLimitSurvivesReconnect(t *testing.T) {
	t.Parallel()
	limiter := transport.NewRateLimiter(0.001, 1)
	svc := newService(t, limiter)
	ctx := context.Background()

	first := svc.dial(t)
	reply, err := first.SendMessage(ctx, request(t, envelope.KindGetConfig, nil))
	require.NoError(t, err)
	assert.Equal(t, envelope.KindGetConfig.Result(), reply.Kind)
	require.NoError(t, first.Close())

	second := svc.dial(t)
	reply, err = second.SendMessage(ctx, request(t, envelope.KindGetConfig, nil))
	require.NoError(t, err)
	assert.Equal(t, envelope.CodeRateLimited, reply.ErrorInfo().Code)
	assert.Equal(t, 1, limiter.Peers())
}

func TestServer_BrowserPeerCannotSendPrivilegedKinds(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	cl := svc.dial(t, transport.WithOrigin(testOrigin))

	link := request(t, envelope.KindLinkIntercepted, envelope.LinkPayload{Scheme: "bitcoin", URI: "bitcoin:1AttackerAddr"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := cl.SendMessage(ctx, link)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The connection stays usable for page operations.
	reply, err := cl.SendMessage(context.Background(), request(t, envelope.KindGetConfig, nil))
	require.NoError(t, err)
	assert.Equal(t, envelope.KindGetConfig.Result(), reply.Kind)
	assert.Equal(t, int64(1), svc.metrics.Snapshot().DroppedUnauthorized)
	assert.Equal(t, 0, svc.broker.Tabs().Len())
}

func TestServer_RejectsForeignBrowserOrigin(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := transport.Dial(ctx, svc.wsURL(transport.PathRuntime), transport.WithOrigin("https://evil.example"))
	require.ErrorIs(t, err, bridgeerr.ErrRelayUnavailable)

	// Only the wallet origin may attach as a surface.
	err = transport.AttachSurface(ctx, svc.wsURL(transport.PathSurface), &walletSurface{}, transport.WithOrigin(testOrigin))
	require.ErrorIs(t, err, bridgeerr.ErrRelayUnavailable)
}

func TestServer_BrowserOriginOverridesRelayMeta(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	w := &walletSurface{address: "addr"}
	svc.attach(t, w)
	cl := svc.dial(t, transport.WithOrigin(testOrigin))

	req := request(t, envelope.KindGetAddress, nil)
	req.Relay.Origin = "https://wallet.example"
	_, err := cl.SendMessage(context.Background(), req)
	require.NoError(t, err)

	w.mu.Lock()
	assert.Equal(t, []string{testOrigin}, w.origins)
	w.mu.Unlock()
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)

	resp, err := http.Get(svc.http.URL + transport.PathHealth) //nolint:noctx // test request
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, false, body["surface"])
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	cl := svc.dial(t)
	_, err := cl.SendMessage(context.Background(), request(t, envelope.KindGetConfig, nil))
	require.NoError(t, err)

	resp, err := http.Get(svc.http.URL + transport.PathMetrics) //nolint:noctx // test request
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sigil_bridge_broker_requests_total 1")
}

func TestClient_FailsAfterServerCloses(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	cl := svc.dial(t)

	svc.server.Close()
	select {
	case <-cl.Done():
	case <-time.After(waitFor):
		t.Fatal("client not closed after server stop")
	}

	_, err := cl.SendMessage(context.Background(), request(t, envelope.KindGetConfig, nil))
	require.ErrorIs(t, err, bridgeerr.ErrRelayUnavailable)
}

func TestEndToEnd_PageToWallet(t *testing.T) {
	t.Parallel()
	svc := newService(t, nil)
	svc.attach(t, &walletSurface{address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", decline: true})
	cl := svc.dial(t)

	win := page.NewWindow(testOrigin)
	win.Start()
	t.Cleanup(win.Stop)

	r := relay.New(win, relay.Config{Runtime: cl, Metrics: svc.metrics})
	r.Start()
	t.Cleanup(r.Stop)

	p := provider.New(win, provider.Config{Metrics: svc.metrics})
	t.Cleanup(p.Close)

	ctx := context.Background()
	addr, err := p.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", addr)

	_, err = p.SignTransaction(ctx, "0100")
	require.ErrorIs(t, err, bridgeerr.ErrUserRejected)
}
