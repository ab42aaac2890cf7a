package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lmoura/cryptopilot/internal/account"
	"github.com/lmoura/cryptopilot/internal/controller"
	"github.com/lmoura/cryptopilot/internal/domain"
	"github.com/lmoura/cryptopilot/internal/feed"
	"github.com/lmoura/cryptopilot/internal/monitoring"
	"github.com/lmoura/cryptopilot/internal/orchestrator"
	"github.com/lmoura/cryptopilot/internal/risk"
	"github.com/lmoura/cryptopilot/internal/strategy"
	"github.com/lmoura/cryptopilot/internal/supervisor"
)

// historySeedLimit is how many persisted trade records seed the risk engine
// on startup so win-rate and Kelly stats survive restarts.
const historySeedLimit = 100

// TradeMode runs the supervised trading daemon against the real exchange.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.runDaemon(ctx, deps)
}

// SimMode runs the same daemon against the in-memory simulator. No external
// services are touched; orders fill against a random-walk price model.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulation mode")
	return a.runDaemon(ctx, deps)
}

// runDaemon starts the supervisor, the monitoring server, and the retention
// cron, then blocks until the context is cancelled or a component fails
// fatally.
func (a *App) runDaemon(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	sup := supervisor.New(a.orchestratorFactory(deps), supervisor.DefaultOptions(), a.logger)
	g.Go(func() error {
		return sup.Run(ctx)
	})

	if a.cfg.Monitor.Enabled {
		srv := monitoring.NewServer(a.cfg.Monitor.Port, deps.Health, a.logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if deps.Retention != nil {
		g.Go(func() error {
			err := deps.Retention.RunCron(ctx, a.cfg.Retention.Cron)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// orchestratorFactory returns the factory the supervisor uses to build the
// orchestrator, once at startup and again after every restart. Each build
// gets a fresh feed, risk engine, and controllers; session statistics are
// re-seeded from the trade record store when one is available.
func (a *App) orchestratorFactory(deps *Dependencies) supervisor.Factory {
	builds := 0
	return func(ctx context.Context) (supervisor.Target, error) {
		builds++
		if builds > 1 {
			monitoring.RecordRestart()
		}

		params, err := a.cfg.Risk.Params()
		if err != nil {
			return nil, fmt.Errorf("app: risk params: %w", err)
		}
		engine := risk.NewEngine(params, deps.TradeRecords, a.logger)

		balance, err := deps.Gateway.GetBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: fetch starting balance: %w", err)
		}
		engine.StartSession(balance)

		if deps.TradeRecords != nil {
			records, err := deps.TradeRecords.ListRecent(ctx, historySeedLimit)
			if err != nil {
				a.logger.WarnContext(ctx, "could not seed trade history",
					slog.String("error", err.Error()))
			} else {
				engine.SeedHistory(records)
			}
		}

		symbols := make([]string, 0, len(a.cfg.Pairs))
		for _, p := range a.cfg.Pairs {
			symbols = append(symbols, p.Symbol)
		}

		f := feed.New(symbols, deps.Streamer, deps.Gateway, deps.TickStore, deps.PriceCache, feed.Options{
			PollInterval:  a.cfg.Feed.PollInterval.Duration,
			ReconnectBase: a.cfg.Feed.ReconnectBase.Duration,
			ReconnectMax:  a.cfg.Feed.ReconnectMax.Duration,
			DegradedAfter: a.cfg.Feed.DegradedAfter,
			FailedAfter:   a.cfg.Feed.FailedAfter,
			PersistBuffer: a.cfg.Feed.PersistBuffer,
		}, a.logger)

		f.OnStateChange(monitoring.UpdateFeedState)
		deps.Health.AddProbe("feed", func() error {
			if f.State() == feed.StateFailed {
				return domain.ErrFeedFailed
			}
			return nil
		})

		recorder := monitoring.NewRecorder()

		ctrlOpts := controller.DefaultOptions()
		ctrlOpts.Timeframe = a.cfg.Trading.Timeframe
		ctrlOpts.CycleInterval = a.cfg.Trading.CycleInterval.Duration
		ctrlOpts.CandleLimit = a.cfg.Trading.CandleLimit

		controllers := make([]*controller.Controller, 0, len(a.cfg.Pairs))
		for _, pc := range a.cfg.Pairs {
			strat, err := strategy.New(pc.Symbol, pc.Strategy, strategy.Params(pc.Params))
			if err != nil {
				return nil, fmt.Errorf("app: pair %s: %w", pc.Symbol, err)
			}

			ctrl := controller.New(pc.Symbol, strat, deps.Gateway, engine, deps.CandleStore, recorder, ctrlOpts, a.logger)
			controllers = append(controllers, ctrl)

			f.AddPriceCallback(pc.Symbol, ctrl.EnqueueTick)
			f.AddPriceCallback(pc.Symbol, func(t domain.Tick) {
				monitoring.UpdatePrice(t.Symbol, t.Price)
			})
		}

		reporter := account.NewReporter(deps.Gateway, engine, f, a.cfg.Trading.SummaryInterval.Duration, a.logger)

		return orchestrator.New(f, controllers, engine, reporter, orchestrator.DefaultOptions(), a.logger), nil
	}
}
