package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-bridge/internal/broker"
	"github.com/mrz1836/sigil-bridge/internal/output"
	"github.com/mrz1836/sigil-bridge/internal/transport"
	"github.com/mrz1836/sigil-bridge/internal/uri"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

const txPreviewLen = 64

// surfaceCmd is the parent command for wallet surfaces.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var surfaceCmd = &cobra.Command{
	Use:     "surface",
	Short:   "Serve wallet operations from this terminal",
	Long:    `Attach a wallet surface to a running broker service.`,
	GroupID: groupBridge,
}

// surfaceAttachCmd connects the terminal surface to the broker service.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var surfaceAttachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach a terminal wallet surface",
	Long: `Connect to the broker service and answer wallet requests from pages.

Connection requests are confirmed on the terminal. Signing requests are
confirmed and then handed to the command given with --sign-cmd, which reads
the unsigned transaction on stdin and prints the signed transaction. Without
--sign-cmd every signing request fails. The surface stays attached until
interrupted or until the service goes away.`,
	Example: `  sigil-bridge surface attach --address 1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2
  sigil-bridge surface attach --chain ethereum --address 0xfb6916095ca1df60bb79Ce92ce3ea74c37c5d359
  sigil-bridge surface attach --address 1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2 --sign-cmd "sigil tx sign --stdin"`,
	RunE: runSurfaceAttach,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	surfaceURL        string
	surfaceAddress    string
	surfaceChain      string
	surfaceSignCmd    string
	surfaceApproveAll bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(surfaceCmd)
	surfaceCmd.AddCommand(surfaceAttachCmd)

	surfaceAttachCmd.Flags().StringVar(&surfaceURL, "url", "", "surface endpoint (default: ws://<broker.listen>/surface)")
	surfaceAttachCmd.Flags().StringVar(&surfaceAddress, "address", "", "address returned to connected pages (required)")
	surfaceAttachCmd.Flags().StringVar(&surfaceChain, "chain", uri.SchemeBitcoin, "scheme used to validate --address")
	surfaceAttachCmd.Flags().StringVar(&surfaceSignCmd, "sign-cmd", "", "command that signs a transaction read from stdin")
	surfaceAttachCmd.Flags().BoolVar(&surfaceApproveAll, "approve-all", false, "approve every request without asking")
	_ = surfaceAttachCmd.MarkFlagRequired("address")
}

func runSurfaceAttach(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)

	if err := uri.ValidateAddress(surfaceChain, surfaceAddress); err != nil {
		return bridgeerr.WithSuggestion(err, "check --address and --chain")
	}

	url := surfaceURL
	if url == "" {
		url = "ws://" + cc.Cfg.Broker.Listen + transport.PathSurface
	}

	prompt := cc.Prompt
	if surfaceApproveAll {
		prompt = approveAll{}
	}
	s := newTerminalSurface(surfaceAddress, prompt, cmd.ErrOrStderr())
	if surfaceSignCmd != "" {
		s.signer = commandSigner(surfaceSignCmd)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	output.Info(cmd.ErrOrStderr(), "wallet surface for %s attaching to %s", surfaceAddress, url)
	err := transport.AttachSurface(ctx, url, s, transport.WithLogger(cc.Log))
	if err != nil && ctx.Err() == nil {
		return bridgeerr.WithSuggestion(err, "start the broker with 'sigil-bridge serve'")
	}
	output.Info(cmd.ErrOrStderr(), "wallet surface detached")
	return nil
}

// signFunc turns an unsigned transaction into a signed one.
type signFunc func(ctx context.Context, tx string) (string, error)

// commandSigner runs command with tx on stdin and returns its trimmed stdout.
func commandSigner(command string) signFunc {
	return func(ctx context.Context, tx string) (string, error) {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return "", bridgeerr.WithSuggestion(bridgeerr.ErrRequestFailed, "--sign-cmd is empty")
		}

		c := exec.CommandContext(ctx, fields[0], fields[1:]...) //nolint:gosec // G204: signer command is operator configured
		c.Stdin = strings.NewReader(tx)
		var stdout, stderr bytes.Buffer
		c.Stdout = &stdout
		c.Stderr = &stderr

		if err := c.Run(); err != nil {
			return "", bridgeerr.WithDetails(
				bridgeerr.Wrap(bridgeerr.ErrRequestFailed, "signer failed: %v", err),
				map[string]string{"stderr": strings.TrimSpace(stderr.String())},
			)
		}

		signed := strings.TrimSpace(stdout.String())
		if signed == "" {
			return "", bridgeerr.Wrap(bridgeerr.ErrRequestFailed, "signer returned no transaction")
		}
		return signed, nil
	}
}

// terminalSurface serves wallet operations for one address, asking the
// operator before connecting an origin or signing.
type terminalSurface struct {
	address string
	prompt  Prompter
	signer  signFunc
	w       io.Writer

	mu        sync.Mutex
	connected map[string]bool
}

var _ broker.Surface = (*terminalSurface)(nil)

func newTerminalSurface(address string, prompt Prompter, w io.Writer) *terminalSurface {
	return &terminalSurface{
		address:   address,
		prompt:    prompt,
		w:         w,
		connected: make(map[string]bool),
	}
}

func (s *terminalSurface) isConnected(origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[origin]
}

// ask waits for the operator's answer or ctx, whichever comes first.
func (s *terminalSurface) ask(ctx context.Context, question string) error {
	type answer struct {
		ok  bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		ok, err := s.prompt.Confirm(question)
		ch <- answer{ok, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return a.err
		}
		if !a.ok {
			return bridgeerr.ErrUserRejected
		}
		return nil
	}
}

// Connect implements broker.Surface.
func (s *terminalSurface) Connect(ctx context.Context, origin string) (string, error) {
	if s.isConnected(origin) {
		return s.address, nil
	}
	if err := s.ask(ctx, fmt.Sprintf("Allow %s to see address %s?", displayOrigin(origin), s.address)); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.connected[origin] = true
	s.mu.Unlock()

	output.Success(s.w, "%s connected", displayOrigin(origin))
	return s.address, nil
}

// Address implements broker.Surface. Unconnected origins go through Connect.
func (s *terminalSurface) Address(ctx context.Context, origin string) (string, error) {
	return s.Connect(ctx, origin)
}

// SignTransaction implements broker.Surface.
func (s *terminalSurface) SignTransaction(ctx context.Context, origin, tx string) (string, error) {
	if s.signer == nil {
		return "", bridgeerr.WithSuggestion(bridgeerr.ErrRequestFailed, "no signer configured; pass --sign-cmd")
	}

	preview := tx
	if len(preview) > txPreviewLen {
		preview = preview[:txPreviewLen] + "..."
	}
	q := fmt.Sprintf("Sign transaction for %s?\n  %s\n", displayOrigin(origin), preview)
	if err := s.ask(ctx, q); err != nil {
		return "", err
	}

	signed, err := s.signer(ctx, tx)
	if err != nil {
		output.Warn(s.w, "signing for %s failed: %v", displayOrigin(origin), err)
		return "", err
	}
	output.Success(s.w, "signed transaction for %s", displayOrigin(origin))
	return signed, nil
}

// Disconnect implements broker.Surface.
func (s *terminalSurface) Disconnect(_ context.Context, origin string) error {
	s.mu.Lock()
	was := s.connected[origin]
	delete(s.connected, origin)
	s.mu.Unlock()

	if was {
		output.Info(s.w, "%s disconnected", displayOrigin(origin))
	}
	return nil
}

func displayOrigin(origin string) string {
	if origin == "" {
		return "a local client"
	}
	return origin
}
