package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/langgraphsystem/rssnews/internal/ask"
)

func newAskCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question over the news corpus",
		Long: `Answers a question. General knowledge questions go straight to the
model; current-events questions run the retrieval loop. Operators site:,
after:, and before: plus time phrases are parsed from the question.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "ask")
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.searcher()
			if err != nil {
				return err
			}
			orch := a.asker(s)

			answer, err := orch.Ask(ctx, strings.Join(args, " "), ask.Options{Depth: depth})
			if err != nil {
				return err
			}

			fmt.Println(answer.Answer)
			if answer.Reasoning != "" {
				fmt.Println("\nreasoning:", answer.Reasoning)
			}
			if len(answer.Evidence) > 0 {
				fmt.Println("\nSources:")
				for i, ev := range answer.Evidence {
					fmt.Printf("[%d] %s - %s\n", i+1, ev.Title, ev.URL)
				}
			}
			fmt.Printf("\nconfidence %.0f%%, %d iteration(s), model %s, %d tokens, %.2f cents\n",
				answer.Confidence*100, answer.Iterations, answer.ModelUsed,
				answer.Usage.Tokens, answer.Usage.Cents)
			for _, w := range answer.Warnings {
				fmt.Println("note:", w)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Agentic loop depth 1-3 (0 = configured default)")
	return cmd
}
