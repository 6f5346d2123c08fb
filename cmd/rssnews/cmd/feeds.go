package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/langgraphsystem/rssnews/internal/store"
)

func newFeedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage the RSS feed registry",
	}
	cmd.AddCommand(newFeedsAddCmd())
	cmd.AddCommand(newFeedsListCmd())
	cmd.AddCommand(newFeedsReviveCmd())
	return cmd
}

func newFeedsAddCmd() *cobra.Command {
	var (
		lang     string
		priority int
		trust    int
		quota    int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Register feeds or update their tunables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "feeds")
			if err != nil {
				return err
			}
			defer a.close()

			for _, url := range args {
				id, err := a.st.UpsertFeed(ctx, &store.Feed{
					URL:           url,
					LangHint:      lang,
					Priority:      priority,
					TrustScore:    trust,
					DailyQuota:    quota,
					CrawlInterval: interval,
				})
				if err != nil {
					return err
				}
				fmt.Printf("feed %d: %s\n", id, url)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "auto", "Language hint (en, ru, auto)")
	cmd.Flags().IntVar(&priority, "priority", 5, "Crawl priority rank, 1 is highest")
	cmd.Flags().IntVar(&trust, "trust", 50, "Source trust score 0-100")
	cmd.Flags().IntVar(&quota, "quota", 200, "Daily article quota")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Minute, "Crawl interval")
	return cmd
}

func newFeedsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered feeds with crawl health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "feeds")
			if err != nil {
				return err
			}
			defer a.close()

			feeds, err := a.st.ListFeeds(ctx)
			if err != nil {
				return err
			}
			if len(feeds) == 0 {
				fmt.Println("No feeds registered.")
				return nil
			}
			for _, f := range feeds {
				last := "never"
				if f.LastCrawledAt != nil {
					last = f.LastCrawledAt.Format(time.RFC3339)
				}
				fmt.Printf("%4d  %-8s health=%-3d fails=%-2d last=%s  %s\n",
					f.ID, f.Status, f.HealthScore, f.ConsecutiveFailures, last, f.URL)
			}
			return nil
		},
	}
}

func newFeedsReviveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revive <id>...",
		Short: "Reactivate paused feeds",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "feeds")
			if err != nil {
				return err
			}
			defer a.close()

			for _, arg := range args {
				var id int64
				if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
					return fmt.Errorf("invalid feed id %q", arg)
				}
				if err := a.st.ReviveFeed(ctx, id); err != nil {
					return err
				}
				fmt.Printf("feed %d revived\n", id)
			}
			return nil
		},
	}
}
