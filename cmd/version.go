package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartedupay/aicore/internal/config"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and effective configuration",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("aicore %s (%s)\n\n", AppVersion, GitCommit)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Project index: %s\n", cfg.Index.ProjectDir)
	fmt.Printf("  User index:    %s\n", cfg.Index.UserDir)
	fmt.Printf("  Embedding:     %s\n", cfg.Embedding.Provider)
	fmt.Printf("  Gemini key:    %s\n", orUnset(config.MaskSecret(cfg.Gemini.APIKey)))
	fmt.Printf("  Vertex:        %s\n", orUnset(cfg.Vertex.Project))
	fmt.Printf("  Azure:         %s\n", orUnset(cfg.Azure.Endpoint))
	fmt.Printf("  OpenAI key:    %s\n", orUnset(config.MaskSecret(cfg.OpenAI.APIKey)))
	fmt.Printf("  Local model:   %s @ %s\n", cfg.Local.Model, cfg.Local.Host)
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
