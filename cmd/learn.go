package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartedupay/aicore/internal/corpus"
	"github.com/smartedupay/aicore/internal/indexer"
)

var (
	learnUserDir  string
	learnExts     []string
	learnExcludes []string
)

var learnCmd = &cobra.Command{
	Use:   "learn [path]",
	Short: "Index a codebase into the project scope",
	Long: `learn scans the given directory (default "."), splits every matching
file into overlapping line windows, embeds them, and writes the index
artifacts plus a knowledge graph.

With --user the corpus is indexed into the personal scope instead, without
a knowledge graph.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().StringVar(&learnUserDir, "user", "", "index into the personal scope at this directory")
	learnCmd.Flags().StringSliceVar(&learnExts, "ext", nil, "override the file extension allow-list")
	learnCmd.Flags().StringSliceVar(&learnExcludes, "exclude", nil, "extra path substrings to skip")
	rootCmd.AddCommand(learnCmd)
}

func runLearn(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	st := a.stores["project"]
	withGraph := true
	if learnUserDir != "" {
		st = a.stores["user"]
		withGraph = false
		root = learnUserDir
	}

	excludes := learnExcludes
	if excludes != nil {
		excludes = append(corpus.DefaultExcludeDirs(), excludes...)
	}
	scanner := corpus.NewScanner(learnExts, excludes)

	ix := indexer.New(scanner, a.embedder, st, a.logger, indexer.Options{
		Neighbors: a.cfg.Index.Neighbors,
		WithGraph: withGraph,
	})
	res, err := ix.Run(cmd.Context(), root)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d files into %d chunks (%s)\n", res.Files, res.Chunks, st.Dir())
	return nil
}
