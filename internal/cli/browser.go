package cli

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// browserCommand returns the program and arguments that open url in the
// default browser on goos.
func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// openBrowser is the tab launcher used by serve. The browser outlives the
// request, so the context is not attached to the process.
func openBrowser(_ context.Context, url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	c := exec.Command(name, args...) //nolint:gosec,noctx // G204: url is the configured wallet URL
	if err := c.Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	go func() { _ = c.Wait() }()
	return nil
}
