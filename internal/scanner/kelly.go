package scanner

// maxBankrollFraction caps any single stake regardless of how strong the
// Kelly number looks. The estimates feeding Kelly are rough, and full Kelly
// on a wrong probability is how bankrolls die.
const maxBankrollFraction = 0.06

// Stake is a Kelly-sized position. A zero value means "do not bet".
type Stake struct {
	Fraction float64 // fraction of bankroll, after scaling and capping
	USD      float64
}

// KellyStake sizes a bet on a binary outcome priced at price with estimated
// win probability estimate. The full Kelly fraction is scaled down by
// kellyFraction and then hard-capped at maxBankrollFraction of bankroll.
// Returns the zero Stake when the price is outside (0,1), the edge is below
// minEdge, or Kelly itself says fold.
func KellyStake(price, estimate, bankroll, minEdge, kellyFraction float64) Stake {
	if price <= 0 || price >= 1 {
		return Stake{}
	}
	if estimate-price < minEdge {
		return Stake{}
	}

	// Payout odds for a binary contract: win (1-price) per price staked.
	b := (1 - price) / price
	fullKelly := (b*estimate - (1 - estimate)) / b
	if fullKelly <= 0 {
		return Stake{}
	}

	fraction := fullKelly * kellyFraction
	if fraction > maxBankrollFraction {
		fraction = maxBankrollFraction
	}
	return Stake{
		Fraction: fraction,
		USD:      fraction * bankroll,
	}
}
