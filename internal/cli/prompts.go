package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// terminalPrompter asks yes/no questions on the controlling terminal.
// Questions from concurrent requests are asked one at a time.
type terminalPrompter struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive func() bool
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stderr,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
		},
	}
}

// Confirm implements Prompter.
func (p *terminalPrompter) Confirm(question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interactive != nil && !p.interactive() {
		return false, bridgeerr.WithSuggestion(
			bridgeerr.ErrUserRejected,
			"stdin is not a terminal; run interactively or pass --approve-all",
		)
	}

	out(p.out, "%s [y/N]: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		outln(p.out)
		return false, fmt.Errorf("reading answer: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// approveAll answers yes without asking.
type approveAll struct{}

// Confirm implements Prompter.
func (approveAll) Confirm(string) (bool, error) { return true, nil }
