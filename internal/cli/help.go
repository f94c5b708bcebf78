package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const subcommandsHeader = "\n\nSubcommands:\n"

// walkCommands visits every command in the tree depth-first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// enrichParentLong appends the available subcommands to a parent command's
// Long description. Calling it twice leaves the description unchanged.
func enrichParentLong(cmd *cobra.Command) {
	if !cmd.HasSubCommands() || cmd == cmd.Root() || strings.Contains(cmd.Long, subcommandsHeader) {
		return
	}

	var sb strings.Builder
	sb.WriteString(cmd.Long)
	sb.WriteString(subcommandsHeader)
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			sb.WriteString(fmt.Sprintf("  %-10s %s\n", sub.Name(), sub.Short))
		}
	}
	cmd.Long = strings.TrimRight(sb.String(), "\n")
}
