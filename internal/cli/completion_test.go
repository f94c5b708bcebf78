package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCompletion_Bash tests bash completion script generation.
func TestCompletion_Bash(t *testing.T) {
	var buf bytes.Buffer

	err := rootCmd.GenBashCompletionV2(&buf, true)
	require.NoError(t, err)

	output := buf.String()
	assert.NotEmpty(t, output, "bash completion should generate output")
	assert.Contains(t, output, "sigil-bridge")
}

// TestCompletion_Zsh tests zsh completion script generation.
func TestCompletion_Zsh(t *testing.T) {
	var buf bytes.Buffer

	err := rootCmd.GenZshCompletion(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "#compdef sigil-bridge")
}

// TestCompletion_Fish tests fish completion script generation.
func TestCompletion_Fish(t *testing.T) {
	var buf bytes.Buffer

	err := rootCmd.GenFishCompletion(&buf, true)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "complete") // fish uses 'complete' command
}

// TestCompletion_PowerShell tests powershell completion script generation.
func TestCompletion_PowerShell(t *testing.T) {
	var buf bytes.Buffer

	err := rootCmd.GenPowerShellCompletionWithDesc(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Register-ArgumentCompleter") // PowerShell completion marker
}

// TestCompletion_Command runs the completion command for every shell and
// checks the script lands on the command's output writer.
func TestCompletion_Command(t *testing.T) {
	for _, shell := range completionCmd.ValidArgs {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			completionCmd.SetOut(&buf)
			defer completionCmd.SetOut(nil)

			err := completionCmd.RunE(completionCmd, []string{shell})
			require.NoError(t, err, "completion generation should succeed for %s", shell)
			assert.NotEmpty(t, buf.String(), "completion output should not be empty for %s", shell)
		})
	}
}

// TestCompletion_RejectsUnknownShell verifies argument validation.
func TestCompletion_RejectsUnknownShell(t *testing.T) {
	require.Error(t, completionCmd.Args(completionCmd, []string{"tcsh"}))
	require.Error(t, completionCmd.Args(completionCmd, []string{}))
	require.NoError(t, completionCmd.Args(completionCmd, []string{"zsh"}))
}
