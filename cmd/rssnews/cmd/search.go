package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		hours   int
		k       int
		lang    string
		sources []string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over the indexed articles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "search")
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.searcher()
			if err != nil {
				return err
			}

			flags := search.DefaultFlags()
			flags.UseCache = true
			res, err := s.Retrieve(ctx, search.Request{
				Query:  strings.Join(args, " "),
				Window: time.Duration(hours) * time.Hour,
				K:      k,
				Filter: store.RetrievalFilter{Lang: lang, Sources: sources},
				Flags:  flags,
			})
			if err != nil {
				return err
			}

			if len(res.Chunks) == 0 {
				fmt.Println("No matching articles in the requested window.")
			}
			for i, c := range res.Chunks {
				date := "no date"
				if c.PublishedAt != nil {
					date = c.PublishedAt.Format("2006-01-02")
				}
				fmt.Printf("%2d. [%.3f] %s\n    %s (%s, %s)\n",
					i+1, c.Score, c.Title, c.URL, c.SourceDomain, date)
			}
			for _, w := range res.Diagnostics.Warnings {
				fmt.Println("note:", w)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "Recency window in hours (0 = default)")
	cmd.Flags().IntVar(&k, "k", 10, "Number of results")
	cmd.Flags().StringVar(&lang, "lang", "", "Language filter (en, ru, auto)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "Source domain filter (eTLD+1)")
	return cmd
}
