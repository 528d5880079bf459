// Package engine owns order construction and submission: tick-exact sizing,
// EIP-712 signing, venue routing, and the audit trail for every attempt.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/predictbot/internal/domain"
	"github.com/quantfold/predictbot/internal/platform/polymarket"
)

const (
	// orderType GTC: rest on the book until filled or cancelled.
	defaultOrderType = "GTC"

	rateLimitKey    = "orders"
	rateLimitMax    = 10
	rateLimitWindow = time.Minute
)

// Exchange is the slice of the execution API the engine needs. Satisfied by
// polymarket.ClobClient.
type Exchange interface {
	PostOrder(ctx context.Context, signed domain.SignedOrder, orderType string) (polymarket.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	NegRisk(ctx context.Context, tokenID string) (bool, error)
	FeeRateBps(ctx context.Context, tokenID string) (int64, error)
}

// Engine places opportunities on the exchange. Pre-flight failures (rate
// limit, venue lookups, approvals, signing) return an error; an exchange
// rejection of a well-formed order is an ordinary outcome and comes back as
// an error-status PlacedOrder with a nil error, so the audit path always
// runs.
type Engine struct {
	exchange Exchange
	builder  *Builder
	gate     *approvalGate
	limiter  domain.RateLimiter // optional
	audit    domain.AuditStore  // optional
	archive  domain.BlobWriter  // optional
	logger   *slog.Logger
}

func New(exchange Exchange, builder *Builder, approver domain.Approver, limiter domain.RateLimiter, audit domain.AuditStore, archive domain.BlobWriter, logger *slog.Logger) *Engine {
	return &Engine{
		exchange: exchange,
		builder:  builder,
		gate:     newApprovalGate(approver),
		limiter:  limiter,
		audit:    audit,
		archive:  archive,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// PlaceOrder sizes, signs, and submits a buy for the opportunity's token.
func (e *Engine) PlaceOrder(ctx context.Context, opp domain.Opportunity, strategy string) (domain.PlacedOrder, error) {
	if err := e.checkRateLimit(ctx); err != nil {
		return domain.PlacedOrder{}, err
	}

	negRisk, err := e.exchange.NegRisk(ctx, opp.Token.TokenID)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("engine: neg-risk lookup: %w", err)
	}
	feeRateBps, err := e.exchange.FeeRateBps(ctx, opp.Token.TokenID)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("engine: fee-rate lookup: %w", err)
	}

	venue := "primary"
	if negRisk {
		venue = "neg_risk"
	}
	if err := e.gate.ensure(ctx, venue); err != nil {
		return domain.PlacedOrder{}, err
	}

	signed, err := e.builder.Build(OrderRequest{
		TokenID:    opp.Token.TokenID,
		Side:       opp.Side,
		Price:      opp.MarketPrice,
		SizeUSD:    opp.StakeUSD,
		TickSize:   opp.Market.TickSize,
		NegRisk:    negRisk,
		FeeRateBps: feeRateBps,
	})
	if err != nil {
		return domain.PlacedOrder{}, err
	}

	placed := domain.PlacedOrder{
		ConditionID: opp.Market.ConditionID,
		TokenID:     opp.Token.TokenID,
		Side:        opp.Side,
		Price:       opp.MarketPrice,
		SizeUSD:     opp.StakeUSD,
		Strategy:    strategy,
		CreatedAt:   time.Now().UTC(),
	}

	result, err := e.exchange.PostOrder(ctx, signed, defaultOrderType)
	switch {
	case err != nil:
		placed.Status = domain.PlacedOrderError
		placed.Message = err.Error()
	case !result.Success:
		placed.Status = domain.PlacedOrderError
		placed.Message = result.Message
	default:
		placed.OrderID = result.OrderID
		placed.Status = orderStatus(result.Status)
		placed.Message = result.Message
	}

	e.recordPlacement(ctx, placed)

	if placed.Failed() {
		e.logger.WarnContext(ctx, "order rejected",
			slog.String("token_id", placed.TokenID),
			slog.String("message", placed.Message))
	} else {
		e.logger.InfoContext(ctx, "order placed",
			slog.String("order_id", placed.OrderID),
			slog.String("status", string(placed.Status)),
			slog.Float64("price", placed.Price),
			slog.Float64("size_usd", placed.SizeUSD))
	}
	return placed, nil
}

// CancelOrder cancels a resting order.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if err := e.exchange.CancelOrder(ctx, orderID); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "order cancelled", slog.String("order_id", orderID))
	return nil
}

// ----- Internal helpers -----

func (e *Engine) checkRateLimit(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	ok, err := e.limiter.Allow(ctx, rateLimitKey, rateLimitMax, rateLimitWindow)
	if err != nil {
		// A broken limiter must not halt trading; log and proceed.
		e.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return fmt.Errorf("engine: place order: %w", domain.ErrRateLimited)
	}
	return nil
}

// recordPlacement writes the attempt to the audit log and the blob archive.
// Both are best-effort; a dead audit sink never blocks trading.
func (e *Engine) recordPlacement(ctx context.Context, placed domain.PlacedOrder) {
	detail := map[string]any{
		"order_id":     placed.OrderID,
		"status":       string(placed.Status),
		"message":      placed.Message,
		"condition_id": placed.ConditionID,
		"token_id":     placed.TokenID,
		"side":         string(placed.Side),
		"price":        placed.Price,
		"size_usd":     placed.SizeUSD,
		"strategy":     placed.Strategy,
	}

	if e.audit != nil {
		if err := e.audit.Log(ctx, "order_placed", detail); err != nil {
			e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if e.archive != nil {
		data, err := json.Marshal(detail)
		if err == nil {
			key := fmt.Sprintf("orders/%s/%d.json", placed.CreatedAt.Format("2006-01-02"), placed.CreatedAt.UnixNano())
			err = e.archive.Put(ctx, key, data, "application/json")
		}
		if err != nil {
			e.logger.WarnContext(ctx, "order archive failed", slog.String("error", err.Error()))
		}
	}
}

func orderStatus(s string) domain.PlacedOrderStatus {
	switch s {
	case "matched":
		return domain.PlacedOrderMatched
	case "delayed":
		return domain.PlacedOrderDelayed
	default:
		return domain.PlacedOrderLive
	}
}
