package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anserhq/anser/internal/rag"
)

var (
	flagFile string
	flagURLs []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add documents to the vector index",
	Long: `Ingest loads a local file (text, PDF, JSON, YAML) and/or a batch of
URLs, cleans and chunks the content, and adds the chunks to the persisted
vector index.

A failing URL in a batch is skipped; a failing file path aborts the run.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&flagFile, "file", "f", "", "path to a local document")
	ingestCmd.Flags().StringSliceVarP(&flagURLs, "url", "u", nil, "URL to fetch (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if flagFile == "" && len(flagURLs) == 0 {
		return rag.ErrNoInput
	}

	ctx := context.Background()

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	added, err := a.RAG.AddDocuments(ctx, flagFile, flagURLs)
	if err != nil {
		return fmt.Errorf("ingesting documents: %w", err)
	}

	fmt.Printf("Added %d chunks to index %q\n", added, a.Config.IndexName)
	return nil
}
