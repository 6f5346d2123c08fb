package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/langgraphsystem/rssnews/internal/config"
	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/service"
)

const rankReloadInterval = time.Minute

// rankReloader keeps a Searcher's scoring knobs in sync with the persisted
// config table, layered over the file config. Editing the config file swaps
// the base; table overrides win on top of it.
type rankReloader struct {
	app      *app
	searcher *search.Searcher
	base     atomic.Pointer[config.RankConfig]
	applied  atomic.Pointer[config.RankConfig]
}

func newRankReloader(a *app, s *search.Searcher) *rankReloader {
	r := &rankReloader{app: a, searcher: s}
	base := a.cfg.Rank
	r.base.Store(&base)
	r.applied.Store(&base)
	return r
}

// watchFile starts the config-file watcher when a config path is in use.
func (r *rankReloader) watchFile(ctx context.Context) error {
	if configPath == "" {
		return nil
	}
	return config.Watch(ctx, configPath, func(cfg *config.Config) {
		rank := cfg.Rank
		r.base.Store(&rank)
	})
}

// run is the periodic table-override pull, for the service runner.
func (r *rankReloader) run(ctx context.Context) error {
	values, err := r.app.st.AllConfigValues(ctx)
	if err != nil {
		return err
	}
	next := config.ApplyRankOverrides(*r.base.Load(), values)
	if next == *r.applied.Load() {
		return nil
	}
	r.applied.Store(&next)
	r.searcher.UpdateRankConfig(next)
	r.app.log.Info("rank config updated from overrides")
	return nil
}

// addTo registers the reload loop on a service.
func (r *rankReloader) addTo(svc *service.Service) {
	svc.Add("rank-reload", rankReloadInterval, r.run)
}
