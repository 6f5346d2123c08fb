// Package service runs pipeline stages either once or on a fixed interval.
// Continuous loops fire immediately, then tick; an ordinary cycle error is
// logged and the loop keeps going, so one bad batch never takes the stage
// down. Fatal errors are the exception: they stop the whole service.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	apperr "github.com/langgraphsystem/rssnews/internal/errors"
)

// RunFunc executes one cycle of a stage.
type RunFunc func(ctx context.Context) error

// Loop runs a stage cycle on a fixed interval until the context ends.
type Loop struct {
	Name     string
	Interval time.Duration
	Run      RunFunc
}

// Service runs a set of loops together and stops them as a group.
type Service struct {
	loops []Loop
	log   *slog.Logger
}

// New builds a Service.
func New(log *slog.Logger) *Service {
	return &Service{log: log.With(slog.String("component", "service"))}
}

// Add registers a loop.
func (s *Service) Add(name string, interval time.Duration, run RunFunc) {
	s.loops = append(s.loops, Loop{Name: name, Interval: interval, Run: run})
}

// Run starts every loop and blocks until the context is canceled. Shutdown
// is graceful: in-flight cycles finish before Run returns.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range s.loops {
		loop := l
		g.Go(func() error {
			return s.runLoop(ctx, loop)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Service) runLoop(ctx context.Context, l Loop) error {
	log := s.log.With(slog.String("stage", l.Name))
	log.Info("stage loop started", slog.Duration("interval", l.Interval))

	if err := s.cycle(ctx, l, log); err != nil {
		return err
	}

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("stage loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.cycle(ctx, l, log); err != nil {
				return err
			}
		}
	}
}

// cycle runs one iteration. Ordinary errors are absorbed; fatal ones come
// back so the loop, and with it the service, stops.
func (s *Service) cycle(ctx context.Context, l Loop, log *slog.Logger) error {
	if ctx.Err() != nil {
		return nil
	}
	start := time.Now()
	if err := l.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if apperr.IsFatal(err) {
			log.Error("stage cycle hit fatal error, stopping service",
				slog.String("error", err.Error()),
				slog.Duration("took", time.Since(start)))
			return err
		}
		log.Error("stage cycle failed",
			slog.String("error", err.Error()),
			slog.Duration("took", time.Since(start)))
		return nil
	}
	log.Debug("stage cycle done", slog.Duration("took", time.Since(start)))
	return nil
}

// Once runs a single stage cycle with logging, for the one-shot modes.
func Once(ctx context.Context, log *slog.Logger, name string, run RunFunc) error {
	start := time.Now()
	err := run(ctx)
	took := time.Since(start)
	if err != nil {
		log.Error("stage run failed",
			slog.String("stage", name),
			slog.String("error", err.Error()),
			slog.Duration("took", took))
		return err
	}
	log.Info("stage run done",
		slog.String("stage", name),
		slog.Duration("took", took))
	return nil
}
