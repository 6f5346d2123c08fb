package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusStages mirrors the pipeline order, not alphabetical.
var statusStages = []string{"poll", "work", "chunking", "embedding", "fts"}

func newStatusCmd() *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index state and recent pipeline activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "status")
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.st.ChunkIndexStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("chunks: %d total, %d embedded, %d indexed, %d pending, %d failed\n\n",
				stats.Total, stats.WithVector, stats.WithFTS, stats.PendingEmbed, stats.EmbedFailed)

			for _, stage := range statusStages {
				recent, err := a.st.RecentBatchRuns(ctx, stage, runs)
				if err != nil {
					return err
				}
				if len(recent) == 0 {
					continue
				}
				fmt.Printf("%s:\n", stage)
				for _, r := range recent {
					errs := 0
					for _, n := range r.ErrorCounts {
						errs += n
					}
					fmt.Printf("  %s  in=%-5d out=%-5d errs=%-3d took=%s\n",
						r.StartedAt.Format("2006-01-02 15:04:05"),
						r.InputCount, r.OutputCount, errs,
						r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 5, "Recent runs to show per stage")
	return cmd
}
