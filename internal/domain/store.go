package domain

import (
	"context"
	"time"
)

// PositionStore is the durable position repository. The core treats it as an
// opaque store; positions are upserted and transitioned, never deleted.
type PositionStore interface {
	// GetOpen returns open positions, optionally filtered by strategy
	// (empty string means all strategies).
	GetOpen(ctx context.Context, strategy string) ([]Position, error)
	Upsert(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	UpdatePrice(ctx context.Context, id string, price, value float64) error
	// Close transitions a position to closed with the realized PnL and an
	// optional transaction reference.
	Close(ctx context.Context, id, txRef string, exitPrice, realizedPnL float64) error
	TotalRealizedPnL(ctx context.Context) (float64, error)
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// PriceCache caches the latest observed price per asset.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
}

// RateLimiter is a sliding-window limiter keyed by arbitrary strings.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter writes immutable objects to blob storage (order-audit archive).
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// PriceFeed supplies a spot price for an underlying asset symbol (e.g. "BTC").
// It is an advisory input signal: implementations may return ErrNotFound.
type PriceFeed interface {
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}

// Approver confirms (and if necessary grants) token-spending and transfer
// approvals for an execution venue. Transaction submission and confirmation
// polling live behind this interface.
type Approver interface {
	EnsureApprovals(ctx context.Context, venue string) error
}
