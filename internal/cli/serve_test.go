package cli

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-bridge/internal/envelope"
	"github.com/mrz1836/sigil-bridge/internal/transport"
	"github.com/mrz1836/sigil-bridge/internal/version"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

const serveWait = 3 * time.Second

// recordingLauncher remembers every URL it was asked to open.
type recordingLauncher struct {
	mu   sync.Mutex
	urls []string
}

func (r *recordingLauncher) launch(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return nil
}

func (r *recordingLauncher) opened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

// runningService is a broker service started by startServe.
type runningService struct {
	addr     string
	out      *safeBuffer
	launcher *recordingLauncher
	errCh    chan error
	cancel   context.CancelFunc
}

func (s *runningService) stop(t *testing.T) {
	t.Helper()
	s.cancel()
	select {
	case err := <-s.errCh:
		require.NoError(t, err)
	case <-time.After(serveWait):
		t.Fatal("serve did not stop")
	}
}

// health fetches /healthz. It returns nil when the service does not answer.
func (s *runningService) health() map[string]any {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+s.addr+transport.PathHealth, nil)
	if err != nil {
		return nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var h map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil
	}
	return h
}

// startServe runs serve on a loopback listener with a recording launcher.
// Call setupTestEnv first.
func startServe(t *testing.T, info BuildInfo) *runningService {
	t.Helper()

	origInfo := buildInfo
	t.Cleanup(func() { buildInfo = origInfo })
	buildInfo = info

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &runningService{
		addr:     l.Addr().String(),
		out:      new(safeBuffer),
		launcher: &recordingLauncher{},
		errCh:    make(chan error, 1),
	}
	cmdCtx.WithLauncher(s.launcher.launch)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		s.errCh <- serve(ctx, cmdCtx, l, s.out)
	}()

	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", s.addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, serveWait, 10*time.Millisecond)
	return s
}

func TestServe_FirstInstallOpensWallet(t *testing.T) {
	tmpDir, testCleanup := setupTestEnv(t)
	defer testCleanup()

	svc := startServe(t, BuildInfo{Version: "v1.0.0"})
	defer svc.stop(t)

	require.Eventually(t, func() bool {
		return len(svc.launcher.opened()) == 1
	}, serveWait, 10*time.Millisecond)
	assert.Equal(t, []string{cfg.Wallet.URL}, svc.launcher.opened())

	state, err := version.LoadState(version.StatePath(tmpDir))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "v1.0.0", state.Version)

	h := svc.health()
	require.NotNil(t, h)
	assert.Equal(t, "ok", h["status"])
	assert.Equal(t, false, h["surface"])

	assert.Contains(t, svc.out.String(), "sigil-bridge v1.0.0 installed")
	assert.Contains(t, svc.out.String(), "broker listening on ws://"+svc.addr)
}

func TestServe_UpdateDoesNotOpenWallet(t *testing.T) {
	tmpDir, testCleanup := setupTestEnv(t)
	defer testCleanup()

	_, _, err := version.Record(version.StatePath(tmpDir), "v0.9.0", time.Now())
	require.NoError(t, err)

	svc := startServe(t, BuildInfo{Version: "v1.0.0"})
	require.Eventually(t, func() bool {
		state, err := version.LoadState(version.StatePath(tmpDir))
		return err == nil && state != nil && state.Version == "v1.0.0"
	}, serveWait, 10*time.Millisecond)
	svc.stop(t)

	assert.Empty(t, svc.launcher.opened())
	assert.Contains(t, svc.out.String(), "updated from v0.9.0 to v1.0.0")
	assert.Contains(t, svc.out.String(), "broker stopped")
}

func TestServe_RuntimeAndSurface(t *testing.T) {
	_, testCleanup := setupTestEnv(t)
	defer testCleanup()

	svc := startServe(t, BuildInfo{Version: "v1.0.0"})
	defer svc.stop(t)

	ctx, cancel := context.WithTimeout(context.Background(), serveWait)
	defer cancel()

	// Terminal surface answering for one address
	surface := newTerminalSurface(testAddress, approveAll{}, new(safeBuffer))
	attached := make(chan error, 1)
	go func() {
		attached <- transport.AttachSurface(ctx, "ws://"+svc.addr+transport.PathSurface, surface)
	}()
	require.Eventually(t, func() bool {
		return svc.health()["surface"] == true
	}, serveWait, 10*time.Millisecond)

	cl, err := transport.Dial(ctx, "ws://"+svc.addr+transport.PathRuntime)
	require.NoError(t, err)
	defer func() { _ = cl.Close() }()

	req, err := envelope.New(envelope.KindConnect, envelope.SourceContent, nil)
	require.NoError(t, err)
	req.Relay = &envelope.RelayMeta{Origin: "https://wallet.sigil.dev", ReceivedAt: time.Now()}

	reply, err := cl.SendMessage(ctx, req)
	require.NoError(t, err)
	require.False(t, reply.Kind.IsError(), "reply: %+v", reply)

	var addr envelope.AddressPayload
	require.NoError(t, reply.DecodePayload(&addr))
	assert.Equal(t, testAddress, addr.Address)

	// Origins outside the allowlist never reach the surface
	req2, err := envelope.New(envelope.KindGetAddress, envelope.SourceContent, nil)
	require.NoError(t, err)
	req2.Relay = &envelope.RelayMeta{Origin: "https://evil.example", ReceivedAt: time.Now()}

	reply2, err := cl.SendMessage(ctx, req2)
	require.NoError(t, err)
	assert.True(t, reply2.Kind.IsError())

	// Config is served without a surface round trip
	req3, err := envelope.New(envelope.KindGetConfig, envelope.SourceContent, nil)
	require.NoError(t, err)
	reply3, err := cl.SendMessage(ctx, req3)
	require.NoError(t, err)
	var conf envelope.ConfigPayload
	require.NoError(t, reply3.DecodePayload(&conf))
	assert.Equal(t, cfg.Wallet.URL, conf.WalletURL)

	cancel()
	select {
	case <-attached:
	case <-time.After(serveWait):
		t.Fatal("surface did not detach")
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	_, testCleanup := setupTestEnv(t)
	defer testCleanup()

	cfg.Wallet.URL = "not a url"
	_, err := newService(cmdCtx)
	require.ErrorIs(t, err, bridgeerr.ErrConfigInvalid)
}

func TestServe_InvalidConfigClosesListener(t *testing.T) {
	_, testCleanup := setupTestEnv(t)
	defer testCleanup()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg.Origins.Allowed = []string{"https://**.example.com"}
	err = serve(context.Background(), cmdCtx, l, new(safeBuffer))
	require.ErrorIs(t, err, bridgeerr.ErrConfigInvalid)

	_, err = l.Accept()
	require.Error(t, err, "listener must be closed")
}

func TestRunServe_ListenError(t *testing.T) {
	_, testCleanup := setupTestEnv(t)
	defer testCleanup()

	// Occupy a port so the second listen fails
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	origListen, origNoBrowser := serveListen, serveNoBrowser
	defer func() { serveListen, serveNoBrowser = origListen, origNoBrowser }()
	serveListen = busy.Addr().String()
	serveNoBrowser = true

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetErr(new(safeBuffer))

	err = runServe(cmd, nil)
	require.ErrorIs(t, err, bridgeerr.ErrGeneral)
	assert.False(t, cfg.Broker.OpenBrowser, "--no-browser disables the launcher")
}

func TestRecordInstall_StateError(t *testing.T) {
	tmpDir, testCleanup := setupTestEnv(t)
	defer testCleanup()

	// A directory where the state file should be makes the write fail
	require.NoError(t, os.MkdirAll(version.StatePath(tmpDir), 0o750))

	svc, err := newService(cmdCtx)
	require.NoError(t, err)

	w := new(safeBuffer)
	assert.NotPanics(t, func() {
		recordInstall(context.Background(), cmdCtx, svc.broker, w)
	})
	assert.Empty(t, w.String())
}
