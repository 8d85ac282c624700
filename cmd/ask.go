package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	flagTopK      int
	flagThreshold float64
	flagSources   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "number of candidates to retrieve (0 = configured default)")
	askCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "relevance threshold override in (0,1]")
	askCmd.Flags().BoolVar(&flagSources, "sources", false, "print retrieved sources with scores")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	question := strings.Join(args, " ")
	resp, err := a.RAG.GenerateResponse(ctx, question, flagTopK, flagThreshold)
	if err != nil {
		return fmt.Errorf("generating response: %w", err)
	}

	fmt.Println(resp.Answer)

	if flagSources && len(resp.Sources) > 0 {
		fmt.Println()
		for _, src := range resp.Sources {
			fmt.Printf("  [%.2f] %s\n", src.Score, src.Name)
		}
	}

	return nil
}
