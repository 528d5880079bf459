package domain

import (
	"math/big"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// SideCode returns the numeric side used inside the signed order struct
// (0 = buy, 1 = sell). The wire envelope uses the string form instead.
func (s OrderSide) SideCode() int {
	if s == OrderSideSell {
		return 1
	}
	return 0
}

// SignedOrder is an immutable, fully signed exchange order. MakerAmount and
// TakerAmount are fixed-point integers in the exchange's 6-decimal base unit;
// their ratio reproduces the tick-rounded price exactly.
type SignedOrder struct {
	Salt          int64
	Maker         string
	Signer        string
	Taker         string
	TokenID       string
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    int64
	Nonce         int64
	FeeRateBps    int64
	Side          OrderSide
	SignatureType int
	Signature     string // 65-byte hex signature
}

// PlacedOrderStatus tracks the exchange-side state of a submitted order.
type PlacedOrderStatus string

const (
	PlacedOrderLive    PlacedOrderStatus = "live"
	PlacedOrderMatched PlacedOrderStatus = "matched"
	PlacedOrderDelayed PlacedOrderStatus = "delayed"
	PlacedOrderError   PlacedOrderStatus = "error"
)

// PlacedOrder is the audit record returned for every submission attempt.
// On failure it carries the full trade context plus an error message rather
// than being raised, so the audit path survives ordinary rejection.
type PlacedOrder struct {
	OrderID     string
	Status      PlacedOrderStatus
	Message     string
	ConditionID string
	TokenID     string
	Side        OrderSide
	Price       float64
	SizeUSD     float64
	Strategy    string
	CreatedAt   time.Time
}

// Failed reports whether the submission ended in an error state.
func (p PlacedOrder) Failed() bool {
	return p.Status == PlacedOrderError
}
