// Package scanner turns a market listing into a ranked list of betting
// opportunities: estimate each market's probability, compare against the
// quoted price, and Kelly-size whatever clears the edge and confidence bars.
package scanner

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/quantfold/predictbot/internal/domain"
)

// nowFunc is swapped in tests that need a fixed clock.
var nowFunc = time.Now

const (
	// confidenceFloor drops opportunities the rule engine is not sure
	// enough about, whatever the apparent edge.
	confidenceFloor = 0.30

	// minStakeUSD drops dust bets whose fees and slippage exceed any
	// plausible return.
	minStakeUSD = 5.0
)

// Config tunes a scan. Zero values fall back to the documented defaults.
type Config struct {
	MinEdge       float64 // minimum estimate-price gap, default 0.05
	KellyFraction float64 // scaling of full Kelly, default 0.25
	MinLiquidity  float64
	MaxDays       float64
	Keywords      []string
	Limit         int
}

func (c Config) withDefaults() Config {
	if c.MinEdge == 0 {
		c.MinEdge = 0.05
	}
	if c.KellyFraction == 0 {
		c.KellyFraction = 0.25
	}
	return c
}

// MarketSource lists candidate markets. Satisfied by polymarket.GammaClient.
type MarketSource interface {
	ListMarkets(ctx context.Context, f domain.MarketFilters) []domain.Market
}

// Scanner scans the market listing for mispriced outcomes.
type Scanner struct {
	source MarketSource
	engine *RuleEngine
	cfg    Config
	logger *slog.Logger
}

func New(source MarketSource, engine *RuleEngine, cfg Config, logger *slog.Logger) *Scanner {
	return &Scanner{
		source: source,
		engine: engine,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// Scan lists markets, estimates each one, and sizes both sides against the
// bankroll. Results come back sorted by edge-weighted stake, best first.
// A side survives only when its edge clears MinEdge, the engine's confidence
// clears the floor, and the Kelly stake clears the dust minimum.
func (s *Scanner) Scan(ctx context.Context, bankrollUSD float64) []domain.Opportunity {
	markets := s.source.ListMarkets(ctx, domain.MarketFilters{
		MinLiquidity: s.cfg.MinLiquidity,
		MaxDays:      s.cfg.MaxDays,
		Keywords:     s.cfg.Keywords,
		Limit:        s.cfg.Limit,
	})
	s.logger.InfoContext(ctx, "scanning markets",
		slog.Int("count", len(markets)),
		slog.Float64("bankroll_usd", bankrollUSD))

	var opps []domain.Opportunity
	for _, m := range markets {
		est := s.engine.Estimate(ctx, m)
		if est.Confidence < confidenceFloor {
			continue
		}
		opps = s.appendSide(opps, m, m.YesToken(), est.Probability, est, bankrollUSD)
		opps = s.appendSide(opps, m, m.NoToken(), 1-est.Probability, est, bankrollUSD)
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].Score() > opps[j].Score()
	})
	s.logger.InfoContext(ctx, "scan complete", slog.Int("opportunities", len(opps)))
	return opps
}

// appendSide sizes one token of a market and appends it when it qualifies.
// winProb is the estimated probability that this token pays out.
func (s *Scanner) appendSide(opps []domain.Opportunity, m domain.Market, token domain.OutcomeToken, winProb float64, est Estimate, bankrollUSD float64) []domain.Opportunity {
	edge := winProb - token.Price
	if edge < s.cfg.MinEdge {
		return opps
	}
	stake := KellyStake(token.Price, winProb, bankrollUSD, s.cfg.MinEdge, s.cfg.KellyFraction)
	if stake.USD < minStakeUSD {
		return opps
	}
	return append(opps, domain.Opportunity{
		Market:      m,
		Token:       token,
		Side:        domain.OrderSideBuy,
		Estimate:    winProb,
		MarketPrice: token.Price,
		Edge:        edge,
		Confidence:  est.Confidence,
		StakeUSD:    stake.USD,
		Rationale:   est.Rationale,
	})
}
