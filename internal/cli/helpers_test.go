package cli

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/metrics"
	"github.com/mrz1836/sigil-bridge/internal/output"
)

// setupTestEnv creates a temporary environment for CLI testing.
// It saves and restores global state to avoid test pollution.
// Tests using this function should NOT use t.Parallel() as they
// modify package-level globals.
func setupTestEnv(t *testing.T) (string, func()) {
	t.Helper()

	origCfg := cfg
	origLogger := logger
	origFormatter := formatter
	origCmdCtx := cmdCtx

	tmpDir, err := os.MkdirTemp("", "sigil-bridge-cli-test")
	require.NoError(t, err)

	testCfg := config.Defaults()
	testCfg.Home = tmpDir
	cfg = testCfg

	logger = config.NullLogger()
	formatter = output.NewFormatter(output.FormatText, os.Stdout)
	cmdCtx = NewCommandContext(cfg, logger, formatter).
		WithMetrics(&metrics.Metrics{}).
		WithPrompter(approveAll{})

	cleanup := func() {
		cfg = origCfg
		logger = origLogger
		formatter = origFormatter
		cmdCtx = origCmdCtx

		_ = os.RemoveAll(tmpDir)
	}

	return tmpDir, cleanup
}

// useFormatter points the test command context at a buffer in the given format.
func useFormatter(t *testing.T, f output.Format) *bytes.Buffer {
	t.Helper()
	require.NotNil(t, cmdCtx, "call setupTestEnv first")

	buf := new(bytes.Buffer)
	formatter = output.NewFormatter(f, buf)
	cmdCtx.Fmt = formatter
	return buf
}
