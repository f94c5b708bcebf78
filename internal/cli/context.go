package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/metrics"
	"github.com/mrz1836/sigil-bridge/internal/output"
	"github.com/mrz1836/sigil-bridge/internal/tabs"
)

type cmdContextKey struct{}

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics

	// Launcher opens wallet tabs. Nil leaves tab bookkeeping without a browser.
	Launcher tabs.Launcher

	// Prompt answers signing approvals for the terminal surface.
	Prompt Prompter
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(
	cfg *config.Config,
	logger *config.Logger,
	formatter *output.Formatter,
) *CommandContext {
	return &CommandContext{
		Cfg:     cfg,
		Log:     logger,
		Fmt:     formatter,
		Metrics: metrics.Global,
		Prompt:  newTerminalPrompter(),
	}
}

// WithLauncher sets the tab launcher.
func (c *CommandContext) WithLauncher(l tabs.Launcher) *CommandContext {
	c.Launcher = l
	return c
}

// WithMetrics replaces the metrics sink.
func (c *CommandContext) WithMetrics(m *metrics.Metrics) *CommandContext {
	c.Metrics = m
	return c
}

// WithPrompter replaces the approval prompter.
func (c *CommandContext) WithPrompter(p Prompter) *CommandContext {
	c.Prompt = p
	return c
}

// SetCmdContext stores cc on the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext stored on cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// commandContext returns the context for cmd, falling back to the globals.
func commandContext(cmd *cobra.Command) *CommandContext {
	if cc := GetCmdContext(cmd); cc != nil {
		return cc
	}
	if cmdCtx != nil {
		return cmdCtx
	}
	return NewCommandContext(config.Defaults(), config.NullLogger(), output.NewFormatter(output.FormatText, cmd.OutOrStdout()))
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}
