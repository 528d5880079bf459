package engine

import (
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/predictbot/internal/crypto"
	"github.com/quantfold/predictbot/internal/domain"
)

// zeroAddress is the taker for open (non-private) orders.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// maxSafeSalt keeps the salt representable in an IEEE 754 double, which is
// what the exchange's JSON layer parses it into.
const maxSafeSalt = int64(1)<<53 - 1

// usdcScale shifts decimal amounts into the exchange's 6-decimal base unit.
var usdcScale = decimal.New(1, 6)

// OrderRequest describes the trade to build before rounding and signing.
type OrderRequest struct {
	TokenID    string
	Side       domain.OrderSide
	Price      float64 // quoted price, pre-rounding
	SizeUSD    float64 // collateral to commit (buy) or target proceeds (sell)
	TickSize   float64
	NegRisk    bool
	FeeRateBps int64
	Expiration int64 // unix seconds, 0 for good-till-cancelled
	Nonce      int64
}

// Builder turns order requests into signed exchange orders. All amount math
// runs in decimal arithmetic so the maker/taker ratio lands exactly on the
// tick-rounded price once scaled to integers.
type Builder struct {
	signer *crypto.Signer
	maker  string // funding wallet address
}

func NewBuilder(signer *crypto.Signer) *Builder {
	return &Builder{
		signer: signer,
		maker:  signer.Address().Hex(),
	}
}

// Build validates, rounds, sizes, and signs an order. The returned order's
// MakerAmount/TakerAmount ratio equals the tick-rounded price exactly.
func (b *Builder) Build(req OrderRequest) (domain.SignedOrder, error) {
	if req.TokenID == "" {
		return domain.SignedOrder{}, fmt.Errorf("engine: build order: %w: empty token id", domain.ErrInvalidOrder)
	}
	// Reject NaN and infinities up front: they slide through ordered
	// comparisons and decimal.NewFromFloat panics on them.
	if math.IsNaN(req.Price) || math.IsInf(req.Price, 0) {
		return domain.SignedOrder{}, fmt.Errorf("engine: build order: %w: non-finite price %g", domain.ErrInvalidOrder, req.Price)
	}
	if math.IsNaN(req.SizeUSD) || math.IsInf(req.SizeUSD, 0) || req.SizeUSD <= 0 {
		return domain.SignedOrder{}, fmt.Errorf("engine: build order: %w: invalid size %g", domain.ErrInvalidOrder, req.SizeUSD)
	}

	price, err := roundToTick(req.Price, req.TickSize)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("engine: build order: %w", err)
	}

	makerAmt, takerAmt, err := orderAmounts(req.Side, price, req.SizeUSD, req.TickSize)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("engine: build order: %w", err)
	}

	salt, err := newSalt()
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("engine: build order: %w", err)
	}

	order := domain.SignedOrder{
		Salt:          salt,
		Maker:         b.maker,
		Signer:        b.maker,
		Taker:         zeroAddress,
		TokenID:       req.TokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Expiration:    req.Expiration,
		Nonce:         req.Nonce,
		FeeRateBps:    req.FeeRateBps,
		Side:          req.Side,
		SignatureType: 0, // EOA
	}

	venue := crypto.VenuePrimary
	if req.NegRisk {
		venue = crypto.VenueNegRisk
	}
	sig, err := b.signer.SignOrder(signingPayload(order), venue)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("engine: sign order: %w", err)
	}
	order.Signature = sig
	return order, nil
}

// ----- Internal helpers -----

// roundToTick snaps price to the market's tick grid and rejects anything
// outside [tick, 1-tick]. Prices at or past the bounds are not clamped; the
// caller's price is wrong and the order must not go out.
func roundToTick(price, tickSize float64) (decimal.Decimal, error) {
	scale, err := tickScale(tickSize)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rounded := decimal.NewFromFloat(price).Round(scale)

	tick := decimal.NewFromFloat(tickSize)
	if rounded.LessThan(tick) || rounded.GreaterThan(decimal.NewFromInt(1).Sub(tick)) {
		return decimal.Decimal{}, fmt.Errorf("%w: price %s outside [%s, %s]",
			domain.ErrInvalidOrder, rounded, tick, decimal.NewFromInt(1).Sub(tick))
	}
	return rounded, nil
}

// tickScale converts a tick size like 0.001 into its decimal place count.
func tickScale(tickSize float64) (int32, error) {
	// The negated form also catches NaN, which fails both comparisons.
	if !(tickSize > 0 && tickSize < 1) {
		return 0, fmt.Errorf("%w: invalid tick size %g", domain.ErrInvalidOrder, tickSize)
	}
	return int32(math.Round(-math.Log10(tickSize))), nil
}

// orderAmounts computes the fixed-point maker/taker pair. Share count is
// truncated to two decimals so lot sizes stay exchange-legal; the cost is
// then derived from the truncated shares, keeping cost/shares == price exact.
func orderAmounts(side domain.OrderSide, price decimal.Decimal, sizeUSD, tickSize float64) (*big.Int, *big.Int, error) {
	scale, err := tickScale(tickSize)
	if err != nil {
		return nil, nil, err
	}

	size := decimal.NewFromFloat(sizeUSD)
	shares := size.Div(price).Truncate(2)
	if shares.IsZero() {
		return nil, nil, fmt.Errorf("%w: size %.2f too small for price %s", domain.ErrInvalidOrder, sizeUSD, price)
	}
	// Exact product: at most scale+2 decimal places, well inside 6.
	cost := shares.Mul(price).Round(scale + 2)

	costUnits := cost.Mul(usdcScale).BigInt()
	shareUnits := shares.Mul(usdcScale).BigInt()

	if side == domain.OrderSideSell {
		// Selling outcome tokens for collateral.
		return shareUnits, costUnits, nil
	}
	return costUnits, shareUnits, nil
}

// newSalt builds a millisecond-timestamped salt with a random suffix. Two
// orders in the same millisecond still get distinct salts.
func newSalt() (int64, error) {
	salt := time.Now().UnixMilli()*1000 + rand.Int63n(1000)
	if salt > maxSafeSalt {
		return 0, fmt.Errorf("%w: salt %d exceeds 2^53-1", domain.ErrInvalidOrder, salt)
	}
	return salt, nil
}

// signingPayload maps the order into the string-typed EIP-712 struct.
func signingPayload(o domain.SignedOrder) crypto.OrderPayload {
	return crypto.OrderPayload{
		Salt:          fmt.Sprintf("%d", o.Salt),
		Maker:         o.Maker,
		Signer:        o.Signer,
		Taker:         o.Taker,
		TokenID:       o.TokenID,
		MakerAmount:   o.MakerAmount.String(),
		TakerAmount:   o.TakerAmount.String(),
		Expiration:    fmt.Sprintf("%d", o.Expiration),
		Nonce:         fmt.Sprintf("%d", o.Nonce),
		FeeRateBps:    fmt.Sprintf("%d", o.FeeRateBps),
		Side:          o.Side.SideCode(),
		SignatureType: 0,
	}
}
