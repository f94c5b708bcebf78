package cli

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-bridge/internal/broker"
	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/origin"
	"github.com/mrz1836/sigil-bridge/internal/output"
	"github.com/mrz1836/sigil-bridge/internal/tabs"
	"github.com/mrz1836/sigil-bridge/internal/transport"
	"github.com/mrz1836/sigil-bridge/internal/uri"
	"github.com/mrz1836/sigil-bridge/internal/version"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// serveCmd runs the broker service.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker service",
	Long: `Run the background broker as a local websocket service.

Content relays connect to /runtime and send page requests, a wallet surface
connects to /surface, /healthz reports liveness and /metrics exports bridge
counters for Prometheus. Browser clients must come from an allowed origin.

On the first run from a home directory the wallet tab is opened once. After
an upgrade the version change is logged.`,
	Example: `  sigil-bridge serve
  sigil-bridge serve --listen 127.0.0.1:9000 --no-browser
  sigil-bridge serve -v`,
	GroupID: groupBridge,
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	serveListen    string
	serveNoBrowser bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default: broker.listen)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "record wallet tabs without launching a browser")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)

	addr := cc.Cfg.Broker.Listen
	if serveListen != "" {
		addr = serveListen
	}
	if serveNoBrowser {
		cc.Cfg.Broker.OpenBrowser = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return bridgeerr.WithDetails(
			bridgeerr.Wrap(bridgeerr.ErrGeneral, "listen: %v", err),
			map[string]string{"listen": addr},
		)
	}

	return serve(ctx, cc, l, cmd.ErrOrStderr())
}

// service is the broker plus the websocket server in front of it.
type service struct {
	broker *broker.Broker
	server *transport.Server
}

// newService wires the broker service from configuration.
func newService(cc *CommandContext) (*service, error) {
	c := cc.Cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	allow, err := origin.New(c.Wallet.URL, c.Origins.Allowed)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.ErrConfigInvalid, "origins.allowed: %v", err)
	}

	launcher := cc.Launcher
	if launcher == nil && c.Broker.OpenBrowser {
		launcher = openBrowser
	}

	b, err := broker.New(broker.Config{
		WalletURL: c.Wallet.URL,
		Allowlist: allow,
		Tabs:      tabs.NewRegistry(c.Wallet.URL, launcher, clock.NewDefaultClock()),
		KeepAlive: ticker.New(c.KeepAliveInterval()),
		Schemes:   uri.DefaultSchemes().With(c.Relay.Schemes...),
		Version:   currentVersion(),
		Logger:    cc.Log,
		Metrics:   cc.Metrics,
	})
	if err != nil {
		return nil, err
	}

	srv := transport.NewServer(transport.ServerConfig{
		Broker:         b,
		Allowlist:      allow,
		Limiter:        transport.NewRateLimiter(c.Broker.RatePerSecond, c.Broker.RateBurst),
		ForwardTimeout: c.ForwardTimeout(),
		Logger:         cc.Log,
		Metrics:        cc.Metrics,
	})

	return &service{broker: b, server: srv}, nil
}

// serve runs the service on l until ctx is done.
func serve(ctx context.Context, cc *CommandContext, l net.Listener, w io.Writer) error {
	svc, err := newService(cc)
	if err != nil {
		_ = l.Close()
		return err
	}

	svc.broker.Start()
	defer svc.broker.Stop()

	recordInstall(ctx, cc, svc.broker, w)

	output.Info(w, "broker listening on ws://%s (wallet %s)", l.Addr(), cc.Cfg.Wallet.URL)
	err = svc.server.Serve(ctx, l)
	output.Info(w, "broker stopped")
	return err
}

// recordInstall updates the install record in the home directory and tells
// the broker about a first install or an update.
func recordInstall(ctx context.Context, cc *CommandContext, b *broker.Broker, w io.Writer) {
	current := currentVersion()
	path := version.StatePath(config.ExpandPath(cc.Cfg.Home))

	t, prev, err := version.Record(path, current, time.Now())
	if err != nil {
		cc.Log.Error("serve: install state %s: %v", path, err)
		return
	}

	switch t {
	case version.TransitionInstall:
		output.Success(w, "sigil-bridge %s installed", current)
		b.OnInstalled(ctx, broker.ReasonInstall, "")
	case version.TransitionUpdate:
		output.Info(w, "sigil-bridge updated from %s to %s", prev, current)
		b.OnInstalled(ctx, broker.ReasonUpdate, prev)
	case version.TransitionNone:
	}
}
