// Package position tracks open holdings across strategies: exposure gating
// before entry, durable state transitions, and risk surveillance on refresh.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/predictbot/internal/domain"
)

const (
	// Drawdown thresholds, measured as loss over cost basis.
	stopLossWarningDrawdown  = 0.45
	stopLossCriticalDrawdown = 0.60

	// Liquidation proximity threshold for leveraged strategies: warn when
	// the current price is within this fraction of the liquidation price.
	liquidationProximity = 0.20
)

// strategyCap bounds a strategy's total exposure as a fraction of portfolio
// value, with the leverage ceiling applied to the proposed notional.
type strategyCap struct {
	portfolioFraction float64
	maxLeverage       float64
}

var strategyCaps = map[string]strategyCap{
	"prediction-markets": {portfolioFraction: 0.15, maxLeverage: 1},
	"leveraged-perps":    {portfolioFraction: 0.10, maxLeverage: 3},
}

// Manager owns position lifecycle. A per-strategy mutex spans the exposure
// check and the subsequent open, so two concurrent opens cannot both pass the
// same headroom.
type Manager struct {
	store  domain.PositionStore
	prices domain.PriceCache // optional
	logger *slog.Logger

	mu       sync.Mutex
	strategy map[string]*sync.Mutex
}

func NewManager(store domain.PositionStore, prices domain.PriceCache, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		prices:   prices,
		logger:   logger.With(slog.String("component", "position")),
		strategy: make(map[string]*sync.Mutex),
	}
}

// CheckExposure gates a proposed position against the strategy's cap without
// opening it. The answer is advisory the moment it returns; use OpenFromFill
// to check and open atomically.
func (m *Manager) CheckExposure(ctx context.Context, strategy string, proposedUSD, portfolioUSD float64) (domain.ExposureCheck, error) {
	lock := m.strategyLock(strategy)
	lock.Lock()
	defer lock.Unlock()
	return m.checkExposureLocked(ctx, strategy, proposedUSD, portfolioUSD)
}

// OpenFromFill records a filled order as an open position. The exposure check
// runs under the strategy lock together with the store write.
func (m *Manager) OpenFromFill(ctx context.Context, placed domain.PlacedOrder, portfolioUSD float64) (domain.Position, error) {
	if placed.Failed() {
		return domain.Position{}, fmt.Errorf("position: open from fill: order %q was rejected", placed.OrderID)
	}

	lock := m.strategyLock(placed.Strategy)
	lock.Lock()
	defer lock.Unlock()

	check, err := m.checkExposureLocked(ctx, placed.Strategy, placed.SizeUSD, portfolioUSD)
	if err != nil {
		return domain.Position{}, err
	}
	if !check.Allowed {
		return domain.Position{}, fmt.Errorf("position: open from fill: %w: %s", domain.ErrCapExceeded, check.Reason)
	}

	now := time.Now().UTC()
	shares := 0.0
	if placed.Price > 0 {
		shares = placed.SizeUSD / placed.Price
	}
	pos := domain.Position{
		ID:           uuid.NewString(),
		Strategy:     placed.Strategy,
		Asset:        placed.TokenID,
		Status:       domain.PositionOpen,
		EntryPrice:   placed.Price,
		CurrentPrice: placed.Price,
		Size:         shares,
		CostBasis:    placed.SizeUSD,
		CurrentValue: placed.SizeUSD,
		Metadata: map[string]string{
			"condition_id": placed.ConditionID,
			"order_id":     placed.OrderID,
			"side":         string(placed.Side),
		},
		OpenedAt:  now,
		UpdatedAt: now,
	}
	if err := m.store.Upsert(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position: open from fill: %w", err)
	}

	m.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("strategy", pos.Strategy),
		slog.String("asset", pos.Asset),
		slog.Float64("cost_basis", pos.CostBasis))
	return pos, nil
}

// Snapshot is one refresh cycle's view of the venue. An asset in neither map
// had no usable fetch this cycle and its position is left untouched; only a
// confirmed absence moves a position to expired.
type Snapshot struct {
	Prices   map[string]float64 // asset to latest price
	Resolved map[string]bool    // assets the venue confirmed it no longer lists
}

// RefreshPrices marks every open position of the strategy to the snapshot's
// prices and returns the risk actions the new marks imply. Actions are
// reported, never executed; the caller decides what to do with them. Assets
// the snapshot confirms absent transition to expired; assets it merely lacks
// a price for are skipped until the next cycle.
func (m *Manager) RefreshPrices(ctx context.Context, strategy string, snap Snapshot) ([]domain.RiskAction, error) {
	open, err := m.store.GetOpen(ctx, strategy)
	if err != nil {
		return nil, fmt.Errorf("position: refresh prices: %w", err)
	}

	var actions []domain.RiskAction
	for _, pos := range open {
		price, ok := snap.Prices[pos.Asset]
		if !ok {
			if snap.Resolved[pos.Asset] {
				actions = append(actions, m.expire(ctx, pos))
			} else {
				m.logger.DebugContext(ctx, "no fresh price for position, skipping",
					slog.String("position_id", pos.ID),
					slog.String("asset", pos.Asset))
			}
			continue
		}

		value := pos.Size * price
		if err := m.store.UpdatePrice(ctx, pos.ID, price, value); err != nil {
			m.logger.WarnContext(ctx, "price update failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()))
			continue
		}
		if m.prices != nil {
			if err := m.prices.SetPrice(ctx, pos.Asset, price, time.Now().UTC()); err != nil {
				m.logger.WarnContext(ctx, "price cache write failed",
					slog.String("asset", pos.Asset),
					slog.String("error", err.Error()))
			}
		}

		pos.CurrentPrice = price
		pos.CurrentValue = value
		if action, ok := m.assess(pos); ok {
			actions = append(actions, action)
		}
	}
	return actions, nil
}

// Close transitions a position to closed, realizing PnL as proceeds minus
// cost basis. Proceeds are what the exit actually returned, fees and
// slippage included, so they are taken from the caller rather than derived
// from size and exit price.
func (m *Manager) Close(ctx context.Context, id, txRef string, exitPrice, proceeds float64) (float64, error) {
	pos, err := m.store.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("position: close %s: %w", id, err)
	}
	if pos.Status == domain.PositionClosed {
		return 0, fmt.Errorf("position: close %s: already closed", id)
	}

	realized := proceeds - pos.CostBasis
	if err := m.store.Close(ctx, id, txRef, exitPrice, realized); err != nil {
		return 0, fmt.Errorf("position: close %s: %w", id, err)
	}

	m.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", id),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("proceeds", proceeds),
		slog.Float64("realized_pnl", realized))
	return realized, nil
}

// ----- Internal helpers -----

func (m *Manager) strategyLock(strategy string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.strategy[strategy]
	if !ok {
		lock = &sync.Mutex{}
		m.strategy[strategy] = lock
	}
	return lock
}

// checkExposureLocked computes headroom for the strategy. Caller holds the
// strategy lock.
func (m *Manager) checkExposureLocked(ctx context.Context, strategy string, proposedUSD, portfolioUSD float64) (domain.ExposureCheck, error) {
	limits, ok := strategyCaps[strategy]
	if !ok {
		return domain.ExposureCheck{
			Strategy:    strategy,
			ProposedUSD: proposedUSD,
			Reason:      fmt.Sprintf("unknown strategy %q", strategy),
		}, nil
	}

	open, err := m.store.GetOpen(ctx, strategy)
	if err != nil {
		return domain.ExposureCheck{}, fmt.Errorf("position: check exposure: %w", err)
	}
	var currentUSD float64
	for _, pos := range open {
		currentUSD += pos.CurrentValue
	}

	capUSD := limits.portfolioFraction * portfolioUSD
	headroom := capUSD - currentUSD
	check := domain.ExposureCheck{
		Strategy:    strategy,
		CurrentUSD:  currentUSD,
		ProposedUSD: proposedUSD,
		CapUSD:      capUSD,
		HeadroomUSD: headroom,
	}

	if proposedUSD > headroom {
		check.Reason = fmt.Sprintf("proposed %.2f exceeds headroom %.2f (cap %.2f, open %.2f)",
			proposedUSD, headroom, capUSD, currentUSD)
		return check, nil
	}
	if limits.maxLeverage > 0 && proposedUSD > limits.maxLeverage*portfolioUSD {
		check.Reason = fmt.Sprintf("proposed %.2f exceeds %gx leverage ceiling", proposedUSD, limits.maxLeverage)
		return check, nil
	}
	check.Allowed = true
	return check, nil
}

// assess grades a freshly marked position. Stop-loss triggers on drawdown
// from cost basis; liquidation proximity only applies when the position
// carries a liquidation price in its metadata.
func (m *Manager) assess(pos domain.Position) (domain.RiskAction, bool) {
	if pos.CostBasis > 0 {
		drawdown := (pos.CostBasis - pos.CurrentValue) / pos.CostBasis
		if drawdown >= stopLossCriticalDrawdown {
			return riskAction(pos, domain.ActionStopLoss, domain.UrgencyCritical,
				fmt.Sprintf("drawdown %.0f%% breaches stop threshold", drawdown*100)), true
		}
		if drawdown >= stopLossWarningDrawdown {
			return riskAction(pos, domain.ActionStopLoss, domain.UrgencyWarning,
				fmt.Sprintf("drawdown %.0f%% approaching stop threshold", drawdown*100)), true
		}
	}

	if liq, ok := parseMetadataFloat(pos.Metadata, "liquidation_price"); ok && liq > 0 && pos.CurrentPrice > 0 {
		distance := (pos.CurrentPrice - liq) / pos.CurrentPrice
		if distance < 0 {
			distance = 0
		}
		if distance < liquidationProximity {
			return riskAction(pos, domain.ActionLiquidationWarning, domain.UrgencyCritical,
				fmt.Sprintf("price within %.0f%% of liquidation", distance*100)), true
		}
	}
	return domain.RiskAction{}, false
}

// expire transitions a position whose asset the venue no longer lists.
func (m *Manager) expire(ctx context.Context, pos domain.Position) domain.RiskAction {
	pos.Status = domain.PositionExpired
	pos.UpdatedAt = time.Now().UTC()
	if err := m.store.Upsert(ctx, pos); err != nil {
		m.logger.WarnContext(ctx, "expire transition failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()))
	}
	return riskAction(pos, domain.ActionExpire, domain.UrgencyWarning,
		"asset no longer listed by the venue, market resolved")
}

func riskAction(pos domain.Position, typ domain.RiskActionType, urgency domain.RiskUrgency, reason string) domain.RiskAction {
	return domain.RiskAction{
		Type:         typ,
		PositionID:   pos.ID,
		Asset:        pos.Asset,
		Strategy:     pos.Strategy,
		Urgency:      urgency,
		Reason:       reason,
		CostBasis:    pos.CostBasis,
		CurrentValue: pos.CurrentValue,
	}
}

func parseMetadataFloat(meta map[string]string, key string) (float64, bool) {
	raw, ok := meta[key]
	if !ok {
		return 0, false
	}
	var v float64
	if _, err := fmt.Sscanf(raw, "%g", &v); err != nil {
		return 0, false
	}
	return v, true
}
