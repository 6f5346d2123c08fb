package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/langgraphsystem/rssnews/internal/server"
	"github.com/langgraphsystem/rssnews/internal/service"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "server")
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.searcher()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			rel := newRankReloader(a, s)
			if err := rel.watchFile(ctx); err != nil {
				return err
			}
			svc := service.New(a.log)
			rel.addTo(svc)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return svc.Run(gctx) })
			g.Go(func() error { return server.New(s, a.st, a.log).Run(gctx, addr) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
