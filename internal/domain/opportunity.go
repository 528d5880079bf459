package domain

// Opportunity is a read-only projection produced on every scan: a market, the
// targeted outcome token, the estimated probability versus the market price,
// and a recommended stake. It copies the Market by value and is never
// persisted.
type Opportunity struct {
	Market      Market
	Token       OutcomeToken
	Side        OrderSide // always buy: the scanner buys underpriced outcomes
	Estimate    float64   // estimated probability for this token's outcome
	MarketPrice float64
	Edge        float64 // Estimate - MarketPrice
	Confidence  float64
	StakeUSD    float64
	Rationale   string
}

// Score is the expected-value proxy used to rank opportunities. It is
// edge x recommended stake, not a true EV.
func (o Opportunity) Score() float64 {
	return o.Edge * o.StakeUSD
}
