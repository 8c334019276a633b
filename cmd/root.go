// Package cmd defines the CLI surface: learn builds index scopes, ask and
// chat answer questions against them.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aicore",
	Short: "Codebase-aware assistant for the school payment platform",
	Long: `aicore indexes a codebase into searchable embedding scopes and answers
questions about it, grounding replies in retrieved source chunks.

Run "aicore learn" once over the repository, then "aicore ask" or the
interactive "aicore chat".`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
