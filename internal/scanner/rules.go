package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/quantfold/predictbot/internal/domain"
)

// Estimate is the engine's opinion of a market's YES probability. Confidence
// is the engine's trust in its own number, not the probability itself. A zero
// confidence marks a market the engine has no signal on.
type Estimate struct {
	Probability float64
	Confidence  float64
	Rationale   string
}

// RuleEngine produces probability estimates from an ordered rule table. The
// first rule that recognizes a market wins; later rules never see it. The
// price feed is optional: without one the price-target rule stands down and
// the market falls through to the heuristics.
type RuleEngine struct {
	feed   domain.PriceFeed
	logger *slog.Logger
}

func NewRuleEngine(feed domain.PriceFeed, logger *slog.Logger) *RuleEngine {
	return &RuleEngine{
		feed:   feed,
		logger: logger.With(slog.String("component", "rules")),
	}
}

// Estimate runs the market through the rule table. It always returns an
// estimate; markets nothing matches come back with zero confidence.
func (e *RuleEngine) Estimate(ctx context.Context, m domain.Market) Estimate {
	if est, ok := e.priceTargetEstimate(ctx, m); ok {
		return est
	}
	if est, ok := baseRateEstimate(m); ok {
		return est
	}
	if est, ok := meanReversionEstimate(m); ok {
		return est
	}
	return Estimate{
		Probability: m.YesToken().Price,
		Confidence:  0,
		Rationale:   "no signal",
	}
}

// ----- Price-target rule -----

const (
	priceTargetConfidence = 0.55

	// Probability clamp for the normal model. Tail estimates beyond these
	// bounds claim more precision than daily-vol extrapolation supports.
	minModelProbability = 0.02
	maxModelProbability = 0.98
)

// Annualized realized vol would be nicer but the model works in daily terms.
var assetVolatility = []struct {
	keywords []string
	symbol   string
	dailyVol float64
}{
	{[]string{"bitcoin", "btc"}, "BTC", 0.03},
	{[]string{"ethereum", "eth"}, "ETH", 0.04},
	{[]string{"solana", "sol"}, "SOL", 0.06},
}

var targetPattern = regexp.MustCompile(`\$([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmM])?`)

// priceTargetEstimate models "will X reach $Y" questions as a driftless
// random walk: the distance to the target in daily-vol units, scaled by the
// square root of days remaining, feeds the normal CDF.
func (e *RuleEngine) priceTargetEstimate(ctx context.Context, m domain.Market) (Estimate, bool) {
	if e.feed == nil {
		return Estimate{}, false
	}
	question := strings.ToLower(m.Question)

	var symbol string
	var dailyVol float64
	for _, a := range assetVolatility {
		for _, kw := range a.keywords {
			if strings.Contains(question, kw) {
				symbol, dailyVol = a.symbol, a.dailyVol
				break
			}
		}
		if symbol != "" {
			break
		}
	}
	if symbol == "" {
		return Estimate{}, false
	}

	target, ok := parseTargetPrice(m.Question)
	if !ok {
		return Estimate{}, false
	}

	spot, err := e.feed.SpotPrice(ctx, symbol)
	if err != nil || spot <= 0 {
		if err != nil {
			e.logger.WarnContext(ctx, "spot price unavailable",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
		}
		return Estimate{}, false
	}

	days := m.DaysToResolution(nowFunc())
	if days < 0.5 {
		days = 0.5
	}
	z := ((target - spot) / spot) / (dailyVol * math.Sqrt(days))

	// P(final > target) for "reach/above" phrasing, the complement for
	// "below/under/dip" phrasing.
	p := 1 - normalCDF(z)
	if strings.Contains(question, "below") || strings.Contains(question, "under") || strings.Contains(question, "dip") {
		p = normalCDF(z)
	}
	p = clamp(p, minModelProbability, maxModelProbability)

	return Estimate{
		Probability: p,
		Confidence:  priceTargetConfidence,
		Rationale:   fmt.Sprintf("price target model: %s spot %.0f vs target %.0f, %.1f days", symbol, spot, target, days),
	}, true
}

// parseTargetPrice pulls the first dollar figure out of a question, honoring
// k/m suffixes ("$100k", "$1.5m").
func parseTargetPrice(question string) (float64, bool) {
	match := targetPattern.FindStringSubmatch(question)
	if match == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(match[1], ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch strings.ToLower(match[2]) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	return v, true
}

// normalCDF is the standard normal CDF via the error function.
func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// ----- Category base rates -----

// baseRate matches when every keyword appears in the question. Rates are
// coarse historical priors for recurring event categories, reviewed rarely.
type baseRate struct {
	keywords   []string
	rate       float64
	confidence float64
	label      string
}

var baseRates = []baseRate{
	{[]string{"etf", "approv"}, 0.72, 0.45, "spot ETF approvals trend through once filings reach final deadlines"},
	{[]string{"sec", "lawsuit"}, 0.30, 0.40, "SEC enforcement actions rarely resolve inside a market window"},
	{[]string{"sec", "settle"}, 0.42, 0.35, "regulatory settlements slip past announced timelines"},
	{[]string{"fed", "cut"}, 0.38, 0.45, "priced-in cuts disappoint more often than futures imply"},
	{[]string{"fed", "hike"}, 0.18, 0.45, "surprise hikes are rare late in a tightening cycle"},
	{[]string{"fed", "pause"}, 0.62, 0.40, "holds are the modal FOMC outcome between regime shifts"},
	{[]string{"rate", "unchanged"}, 0.60, 0.40, "holds are the modal FOMC outcome between regime shifts"},
	{[]string{"inflation", "above"}, 0.45, 0.35, "CPI beats cluster but mean-revert within quarters"},
	{[]string{"recession", "declare"}, 0.12, 0.40, "NBER declarations lag; in-window calls almost never land"},
	{[]string{"recession"}, 0.20, 0.30, "recession markets chronically overprice tail fear"},
	{[]string{"halving"}, 0.88, 0.55, "protocol-scheduled events resolve on time"},
	{[]string{"hard fork"}, 0.70, 0.40, "announced forks ship, usually late"},
	{[]string{"mainnet", "launch"}, 0.55, 0.35, "mainnet dates slip roughly half the time"},
	{[]string{"airdrop"}, 0.48, 0.30, "teased airdrops land near a coin flip inside a fixed window"},
	{[]string{"hack", "exploit"}, 0.35, 0.30, "named-protocol exploit markets overprice salience"},
	{[]string{"depeg"}, 0.15, 0.40, "major stablecoin depegs are rarer than the premium implies"},
	{[]string{"bankrupt"}, 0.25, 0.35, "bankruptcy filings take longer than market windows allow"},
	{[]string{"acquisition", "close"}, 0.78, 0.45, "announced acquisitions close at high base rates"},
	{[]string{"merger", "approv"}, 0.70, 0.40, "most mergers clear review, delayed not blocked"},
	{[]string{"ipo"}, 0.40, 0.35, "IPO timing markets overprice announced intentions"},
	{[]string{"all-time high"}, 0.32, 0.35, "ATH markets overprice momentum continuation"},
	{[]string{"flippening"}, 0.05, 0.50, "multi-year structural shifts do not resolve in months"},
	{[]string{"listed", "coinbase"}, 0.35, 0.30, "exchange listing rumors mostly stay rumors"},
	{[]string{"listed", "binance"}, 0.35, 0.30, "exchange listing rumors mostly stay rumors"},
	{[]string{"resign"}, 0.22, 0.35, "resignation markets overprice scandal news cycles"},
	{[]string{"impeach"}, 0.08, 0.45, "impeachment conviction base rate is near zero"},
	{[]string{"veto"}, 0.30, 0.35, "veto threats outnumber vetoes"},
	{[]string{"shutdown", "government"}, 0.35, 0.40, "shutdown brinkmanship usually ends in a deal"},
	{[]string{"debt ceiling"}, 0.90, 0.45, "the ceiling always gets raised, eventually"},
	{[]string{"executive order"}, 0.55, 0.30, "signaled executive orders ship slightly more often than not"},
}

func baseRateEstimate(m domain.Market) (Estimate, bool) {
	question := strings.ToLower(m.Question)
	for _, br := range baseRates {
		matched := true
		for _, kw := range br.keywords {
			if !strings.Contains(question, kw) {
				matched = false
				break
			}
		}
		if matched {
			return Estimate{
				Probability: br.rate,
				Confidence:  br.confidence,
				Rationale:   "base rate: " + br.label,
			}, true
		}
	}
	return Estimate{}, false
}

// ----- Mean reversion -----

const (
	meanReversionHighBand   = 0.85
	meanReversionLowBand    = 0.15
	meanReversionDiscount   = 0.07
	meanReversionConfidence = 0.35
)

// meanReversionEstimate is the catch-all for extreme prices. Longshots are
// systematically overbought and near-certainties overpriced, so the estimate
// leans a fixed step back toward the middle.
func meanReversionEstimate(m domain.Market) (Estimate, bool) {
	price := m.YesToken().Price
	switch {
	case price > meanReversionHighBand:
		return Estimate{
			Probability: price - meanReversionDiscount,
			Confidence:  meanReversionConfidence,
			Rationale:   "mean reversion: favourite premium discount",
		}, true
	case price < meanReversionLowBand:
		return Estimate{
			Probability: price + meanReversionDiscount,
			Confidence:  meanReversionConfidence,
			Rationale:   "mean reversion: longshot bias discount",
		}, true
	}
	return Estimate{}, false
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
