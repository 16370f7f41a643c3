package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/updownbot/internal/arb"
	"github.com/quantfold/updownbot/internal/domain"
	"github.com/quantfold/updownbot/internal/exec"
	"github.com/quantfold/updownbot/internal/feed"
	"github.com/quantfold/updownbot/internal/ledger"
	"github.com/quantfold/updownbot/internal/marketdata"
	"github.com/quantfold/updownbot/internal/platform/polymarket"
	"github.com/quantfold/updownbot/internal/server"
	"github.com/quantfold/updownbot/internal/server/handler"
)

// instanceLockTTL bounds how long a crashed instance keeps the wallet locked.
const instanceLockTTL = 5 * time.Minute

// settleCheckInterval is the settlement sweep cadence.
const settleCheckInterval = 30 * time.Second

// SimulationMode runs the full detect-and-execute loop against a simulated
// venue. Orders fill after a fixed latency and nothing touches the chain.
func (a *App) SimulationMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulation mode")

	venue := exec.NewSimulatedVenue(200*time.Millisecond, a.logger)
	opts := a.coordinatorOptions()
	opts.Simulated = true
	coordinator := exec.NewCoordinator(venue, deps.Ledger, deps.EventBus, opts, a.logger)
	settler := exec.NewSettler(deps.Clob, nil, deps.Ledger, deps.EventBus, a.settlerOptions(false), a.logger)

	g, ctx := errgroup.WithContext(ctx)
	if err := a.runEngine(ctx, g, deps, coordinator, coordinator, settler); err != nil {
		return err
	}

	err := g.Wait()
	coordinator.Wait()
	return err
}

// ProductionMode runs the same loop against the live CLOB. A distributed lock
// keyed on the wallet address guarantees at most one trading instance.
func (a *App) ProductionMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting production mode",
		slog.String("wallet", deps.Signer.Address().Hex()))

	if deps.LockManager == nil {
		return fmt.Errorf("app: production mode requires redis for the instance lock")
	}
	unlock, err := deps.LockManager.Acquire(ctx, "wallet:"+deps.Signer.Address().Hex(), instanceLockTTL)
	if err != nil {
		return fmt.Errorf("app: acquire instance lock: %w", err)
	}
	a.closers = append(a.closers, unlock)

	// Exchange the wallet signature for HMAC credentials unless the config
	// pre-provisioned them.
	if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
		if a.cfg.Wallet.ApiKey == "" {
			return fmt.Errorf("app: derive api key: %w", err)
		}
		a.logger.WarnContext(ctx, "api key derivation failed, relying on configured credentials",
			slog.String("error", err.Error()))
	}

	coordinator := exec.NewCoordinator(deps.Clob, deps.Ledger, deps.EventBus, a.coordinatorOptions(), a.logger)
	settler := exec.NewSettler(deps.Clob, deps.Clob, deps.Ledger, deps.EventBus, a.settlerOptions(true), a.logger)

	g, ctx := errgroup.WithContext(ctx)
	if err := a.runEngine(ctx, g, deps, coordinator, coordinator, settler); err != nil {
		return err
	}

	err = g.Wait()
	coordinator.Wait()
	return err
}

// MonitorMode detects and logs opportunities without ever submitting orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode, detection only")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.runEngine(ctx, g, deps, nil, nil, nil); err != nil {
		return err
	}
	return g.Wait()
}

// runEngine starts the goroutines shared by every mode: market discovery,
// the pollers, the optional websocket feed, the opportunity monitor, the
// settlement sweep, the HTTP server, the archiver, and the notifier.
// submitter, inFlight and settler are nil in monitor mode.
func (a *App) runEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies, submitter arb.Submitter, inFlight handler.InFlightSource, settler *exec.Settler) error {
	if err := a.resolveMarkets(ctx, g, deps); err != nil {
		return err
	}

	quota := marketdata.RateQuota{Limit: a.cfg.Redis.QuoteRateLimit, Window: time.Second}
	interval := a.cfg.CheckInterval()
	for _, m := range []struct {
		label string
		slot  *marketdata.MarketSlot
	}{
		{deps.LabelA, deps.SlotA},
		{deps.LabelB, deps.SlotB},
	} {
		poller := marketdata.NewPoller(m.label, m.slot, deps.Clob, deps.Cache, deps.Trigger,
			interval, deps.RateLimiter, quota, a.logger)
		g.Go(func() error {
			return poller.Run(ctx)
		})
	}

	if a.cfg.Polymarket.WsFeedEnabled {
		wsFeed := feed.NewWSFeed(
			polymarket.NewWSClient(a.cfg.Polymarket.WsHost),
			deps.Cache,
			deps.Trigger,
			map[string]*marketdata.MarketSlot{deps.LabelA: deps.SlotA, deps.LabelB: deps.SlotB},
			a.logger,
		)
		g.Go(func() error {
			return wsFeed.Run(ctx)
		})
	}

	evaluator := arb.NewEvaluator(
		deps.Cache,
		deps.LabelA,
		deps.LabelB,
		domain.TicksFromFloat(a.cfg.Trading.MinProfitThreshold),
		domain.TicksFromFloat(a.cfg.Trading.MinAskFilter),
		a.cfg.QuoteStaleBound(),
	)
	monitor := arb.NewMonitor(evaluator, submitter, deps.EventBus, deps.Trigger, a.logger)
	g.Go(func() error {
		return monitor.Run(ctx)
	})

	if settler != nil {
		g.Go(func() error {
			return settler.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, inFlight)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	if deps.Notifier != nil {
		g.Go(func() error {
			return deps.Notifier.Run(ctx)
		})
	}

	return nil
}

// resolveMarkets performs the initial market discovery. With pinned condition
// IDs the markets are fixed for the process lifetime; otherwise the rotator
// rediscovers both markets at every window boundary.
func (a *App) resolveMarkets(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	mc := a.cfg.Markets
	if mc.ConditionIDA != "" && mc.ConditionIDB != "" {
		marketA, err := deps.Gamma.MarketByConditionID(ctx, mc.ConditionIDA, deps.LabelA)
		if err != nil {
			return fmt.Errorf("app: resolve pinned market %s: %w", deps.LabelA, err)
		}
		marketB, err := deps.Gamma.MarketByConditionID(ctx, mc.ConditionIDB, deps.LabelB)
		if err != nil {
			return fmt.Errorf("app: resolve pinned market %s: %w", deps.LabelB, err)
		}
		deps.SlotA.Store(marketA)
		deps.SlotB.Store(marketB)
		a.logger.InfoContext(ctx, "markets pinned by condition id",
			slog.String("condition_id_a", mc.ConditionIDA),
			slog.String("condition_id_b", mc.ConditionIDB))
		return nil
	}

	rotator := marketdata.NewRotator(deps.Gamma, deps.Cache, mc.WindowMinutes, a.logger)
	rotator.Watch(mc.AssetA, deps.LabelA, deps.SlotA)
	rotator.Watch(mc.AssetB, deps.LabelB, deps.SlotB)
	if err := rotator.Resolve(ctx); err != nil {
		return fmt.Errorf("app: resolve markets: %w", err)
	}
	g.Go(func() error {
		return rotator.Run(ctx)
	})
	return nil
}

// startHTTPServer wires the read-only status API and registers its shutdown.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, inFlight handler.InFlightSource) {
	slots := map[string]*marketdata.MarketSlot{deps.LabelA: deps.SlotA, deps.LabelB: deps.SlotB}
	srv := server.NewServer(
		server.Config{Port: a.cfg.Server.Port},
		server.Handlers{
			Health: handler.NewHealthHandler(),
			Status: handler.NewStatusHandler(a.cfg.Mode, deps.Cache, slots, inFlight),
			Ledger: handler.NewLedgerHandler(deps.Ledger),
		},
		a.logger,
	)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

var (
	_ arb.Submitter       = (*exec.Coordinator)(nil)
	_ exec.Recorder       = (*ledger.Ledger)(nil)
	_ exec.SettlementBook = (*ledger.Ledger)(nil)
)

func (a *App) coordinatorOptions() exec.Options {
	t := a.cfg.Trading
	return exec.Options{
		MaxPositionTicks: domain.TicksFromFloat(t.MaxPositionSize),
		SubmitTimeout:    time.Duration(t.SubmitTimeoutMs) * time.Millisecond,
		FillTimeout:      time.Duration(t.FillTimeoutMs) * time.Millisecond,
		FillPoll:         time.Duration(t.FillPollMs) * time.Millisecond,
		SettleGrace:      time.Duration(t.SettleGraceMs) * time.Millisecond,
		FlattenPartial:   t.FlattenPartialLeg,
	}
}

// settlerOptions derives the settlement sweep bounds from the market window.
// A period market cannot resolve before its window elapses, so trades younger
// than roughly one window are not worth checking.
func (a *App) settlerOptions(sellWinners bool) exec.SettlerOptions {
	minAge := time.Duration(a.cfg.Markets.WindowMinutes-1) * time.Minute
	if minAge < time.Minute {
		minAge = time.Minute
	}
	return exec.SettlerOptions{
		MinAge:        minAge,
		CheckInterval: settleCheckInterval,
		SellWinners:   sellWinners,
	}
}
