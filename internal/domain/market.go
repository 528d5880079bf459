package domain

import "time"

// OutcomeToken is one side of a binary market: a tradable claim that pays out
// if the outcome occurs. Price approximates the market-implied probability and
// is only meaningful strictly inside (0,1).
type OutcomeToken struct {
	TokenID string
	Outcome string // "Yes" or "No"
	Price   float64
}

// Market represents a binary-outcome prediction market.
type Market struct {
	ConditionID string
	Question    string
	EndDate     time.Time
	Active      bool
	Closed      bool
	NegRisk     bool // routed through the risk-isolated exchange when true
	Liquidity   float64
	Volume      float64
	TickSize    float64
	Tokens      [2]OutcomeToken // exactly two: Yes then No
}

// YesToken returns the outcome token labelled "Yes", falling back to the
// first token when neither is labelled.
func (m Market) YesToken() OutcomeToken {
	for _, t := range m.Tokens {
		if t.Outcome == "Yes" {
			return t
		}
	}
	return m.Tokens[0]
}

// NoToken returns the outcome token labelled "No", falling back to the
// second token when neither is labelled.
func (m Market) NoToken() OutcomeToken {
	for _, t := range m.Tokens {
		if t.Outcome == "No" {
			return t
		}
	}
	return m.Tokens[1]
}

// ValidPrices reports whether both token prices are strictly inside (0,1).
// A price of exactly 0 or 1 signals stale or invalid upstream data and must
// be rejected by consumers, never clamped. The negated comparison also
// rejects NaN, which would otherwise pass both ordered checks.
func (m Market) ValidPrices() bool {
	for _, t := range m.Tokens {
		if !(t.Price > 0 && t.Price < 1) {
			return false
		}
	}
	return true
}

// DaysToResolution returns the fractional number of days until the market's
// resolution deadline, measured from now. Negative means already past.
func (m Market) DaysToResolution(now time.Time) float64 {
	return m.EndDate.Sub(now).Hours() / 24
}

// MarketFilters narrows a market listing before normalization.
type MarketFilters struct {
	MinLiquidity float64
	MaxDays      float64  // maximum days to resolution; 0 disables
	Keywords     []string // nil means the client's default vocabulary
	Limit        int
}
