package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/predictbot/internal/domain"
	"github.com/quantfold/predictbot/internal/notify"
	"github.com/quantfold/predictbot/internal/position"
)

// ScanMode periodically scans for opportunities and reports them without
// trading. Useful for calibrating rules before committing a bankroll.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.Duration("interval", a.cfg.Scanner.Interval.Duration))

	ticker := time.NewTicker(a.cfg.Scanner.Interval.Duration)
	defer ticker.Stop()

	for {
		a.scanOnce(ctx, deps)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TradeMode runs the scan/place loop and the position refresh loop together.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("dry_run", a.cfg.Trading.DryRun),
		slog.Float64("bankroll_usd", a.cfg.Trading.BankrollUSD))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.tradeLoop(ctx, deps) })
	g.Go(func() error { return a.refreshLoop(ctx, deps) })
	return g.Wait()
}

// MonitorMode runs only the position refresh loop. No wallet is required.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.refreshLoop(ctx, deps)
}

// FullMode is trade plus a periodic scan report.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.tradeLoop(ctx, deps) })
	g.Go(func() error { return a.refreshLoop(ctx, deps) })
	return g.Wait()
}

// ----- Loops -----

func (a *App) tradeLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Scanner.Interval.Duration)
	defer ticker.Stop()

	for {
		if err := a.tradeOnce(ctx, deps); err != nil {
			a.logger.ErrorContext(ctx, "trade cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) refreshLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Trading.RefreshInterval.Duration)
	defer ticker.Stop()

	for {
		if err := a.refreshOnce(ctx, deps); err != nil {
			a.logger.ErrorContext(ctx, "position refresh failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ----- Cycles -----

func (a *App) scanOnce(ctx context.Context, deps *Dependencies) []domain.Opportunity {
	opps := deps.Scanner.Scan(ctx, a.cfg.Trading.BankrollUSD)
	for i, opp := range opps {
		if i >= 10 {
			break
		}
		a.logger.InfoContext(ctx, "opportunity",
			slog.String("question", opp.Market.Question),
			slog.String("outcome", opp.Token.Outcome),
			slog.Float64("price", opp.MarketPrice),
			slog.Float64("estimate", opp.Estimate),
			slog.Float64("edge", opp.Edge),
			slog.Float64("stake_usd", opp.StakeUSD),
			slog.String("rationale", opp.Rationale))
	}
	if len(opps) > 0 {
		best := opps[0]
		_ = deps.Notifier.Notify(ctx, notify.EventScan, "Scan results",
			fmt.Sprintf("%d opportunities; best: %q %s @ %.3f, edge %.3f, stake $%.2f",
				len(opps), best.Market.Question, best.Token.Outcome,
				best.MarketPrice, best.Edge, best.StakeUSD))
	}
	return opps
}

// tradeOnce scans and places up to MaxOrdersPerRun orders, opening a tracked
// position for each accepted fill.
func (a *App) tradeOnce(ctx context.Context, deps *Dependencies) error {
	opps := a.scanOnce(ctx, deps)

	placedCount := 0
	for _, opp := range opps {
		if placedCount >= a.cfg.Trading.MaxOrdersPerRun {
			break
		}

		check, err := deps.Positions.CheckExposure(ctx, a.cfg.Trading.Strategy, opp.StakeUSD, a.cfg.Trading.BankrollUSD)
		if err != nil {
			return err
		}
		if !check.Allowed {
			a.logger.InfoContext(ctx, "skipping opportunity, exposure cap",
				slog.String("question", opp.Market.Question),
				slog.String("reason", check.Reason))
			continue
		}

		if a.cfg.Trading.DryRun {
			a.logger.InfoContext(ctx, "dry run, order not placed",
				slog.String("question", opp.Market.Question),
				slog.Float64("stake_usd", opp.StakeUSD))
			placedCount++
			continue
		}

		placed, err := deps.Engine.PlaceOrder(ctx, opp, a.cfg.Trading.Strategy)
		if err != nil {
			a.logger.ErrorContext(ctx, "order placement failed", slog.String("error", err.Error()))
			continue
		}
		if placed.Failed() {
			continue
		}
		placedCount++

		_ = deps.Notifier.NotifyFill(ctx, placed)
		if _, err := deps.Positions.OpenFromFill(ctx, placed, a.cfg.Trading.BankrollUSD); err != nil {
			a.logger.ErrorContext(ctx, "position open failed",
				slog.String("order_id", placed.OrderID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// refreshOnce re-prices open positions from market discovery and forwards
// risk actions to the operator. A failed market fetch leaves its positions
// untouched until the next cycle; only a lookup that succeeds without finding
// the market marks its positions resolved.
func (a *App) refreshOnce(ctx context.Context, deps *Dependencies) error {
	open, err := deps.PositionStore.GetOpen(ctx, a.cfg.Trading.Strategy)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	snap := position.Snapshot{
		Prices:   make(map[string]float64),
		Resolved: make(map[string]bool),
	}
	type fetchResult struct {
		market *domain.Market
		gone   bool
	}
	fetched := make(map[string]fetchResult)
	for _, pos := range open {
		conditionID := pos.Metadata["condition_id"]
		if conditionID == "" {
			continue
		}
		result, ok := fetched[conditionID]
		if !ok {
			market, err := deps.Gamma.FetchMarket(ctx, conditionID)
			if err != nil {
				a.logger.WarnContext(ctx, "market fetch failed, deferring refresh",
					slog.String("condition_id", conditionID),
					slog.String("error", err.Error()))
			}
			result = fetchResult{market: market, gone: err == nil && market == nil}
			fetched[conditionID] = result
			if market != nil {
				for _, token := range market.Tokens {
					snap.Prices[token.TokenID] = token.Price
				}
			}
		}
		if result.gone {
			snap.Resolved[pos.Asset] = true
		}
	}

	actions, err := deps.Positions.RefreshPrices(ctx, a.cfg.Trading.Strategy, snap)
	if err != nil {
		return err
	}
	for _, action := range actions {
		a.logger.WarnContext(ctx, "risk action",
			slog.String("type", string(action.Type)),
			slog.String("urgency", string(action.Urgency)),
			slog.String("position_id", action.PositionID),
			slog.String("reason", action.Reason))
		_ = deps.Notifier.NotifyRiskAction(ctx, action)
	}

	// Reconcile against the venue's own snapshot when a wallet is wired.
	if deps.Auth != nil {
		live, err := deps.Data.Positions(ctx, deps.Auth.Address())
		if err != nil {
			a.logger.WarnContext(ctx, "live position snapshot failed", slog.String("error", err.Error()))
		} else if len(live) != len(open) {
			a.logger.InfoContext(ctx, "position count mismatch with venue",
				slog.Int("local", len(open)),
				slog.Int("venue", len(live)))
		}
	}
	return nil
}
