package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/predictbot/internal/domain"
)

// fallbackScanLimit caps the bulk listing walked by FetchMarket's fallback
// scan. The upstream id mismatch this works around has no documented bound,
// so one full page is as far as we go.
const fallbackScanLimit = 500

// defaultVocabulary is the fixed keyword set a market's question must match
// (case-insensitive substring) to be considered in-domain.
var defaultVocabulary = []string{
	"bitcoin", "btc", "ethereum", "eth", "solana", "sol", "crypto",
	"defi", "stablecoin", "etf", "sec", "fed", "rate", "inflation",
	"recession", "halving", "airdrop", "layer 2", "token",
}

// GammaClient is the read-only client for the market discovery API. Market
// discovery is advisory: transport and parse failures degrade to empty
// results and a warning, never an error.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGammaClient creates a discovery client for the given API root, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With(slog.String("component", "gamma")),
	}
}

// ListMarkets fetches active markets and applies, in order: minimum
// liquidity, maximum days to resolution, active/closed, and keyword
// relevance. Entries that fail normalization or carry a price outside (0,1)
// are dropped.
func (g *GammaClient) ListMarkets(ctx context.Context, f domain.MarketFilters) []domain.Market {
	limit := f.Limit
	if limit <= 0 {
		limit = fallbackScanLimit
	}

	raw, err := g.fetchListing(ctx, limit)
	if err != nil {
		g.logger.WarnContext(ctx, "market listing failed", slog.String("error", err.Error()))
		return nil
	}

	keywords := f.Keywords
	if keywords == nil {
		keywords = defaultVocabulary
	}
	now := time.Now()

	markets := make([]domain.Market, 0, len(raw))
	for i := range raw {
		m, convErr := raw[i].toDomainMarket()
		if convErr != nil {
			g.logger.WarnContext(ctx, "skipping malformed market", slog.String("error", convErr.Error()))
			continue
		}

		if m.Liquidity < f.MinLiquidity {
			continue
		}
		if f.MaxDays > 0 {
			days := m.DaysToResolution(now)
			if days < 0 || days > f.MaxDays {
				continue
			}
		}
		if !m.Active || m.Closed {
			continue
		}
		if !matchesVocabulary(m.Question, keywords) {
			continue
		}
		if !m.ValidPrices() {
			// 0 or 1 means stale data; reject, never clamp.
			continue
		}

		markets = append(markets, m)
	}

	g.logger.InfoContext(ctx, "listed markets",
		slog.Int("fetched", len(raw)),
		slog.Int("kept", len(markets)),
	)
	return markets
}

// FetchMarket re-fetches a single market by condition id. The direct lookup
// endpoint is tried first; when its id field does not match the requested one
// (a documented upstream inconsistency), it falls back to scanning one page
// of the bulk listing. A nil market with a nil error means the venue no
// longer lists the market; a non-nil error means the lookup itself failed and
// nothing can be concluded about the market.
func (g *GammaClient) FetchMarket(ctx context.Context, conditionID string) (*domain.Market, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(conditionID))
	if err == nil {
		var raw apiMarket
		if jsonErr := json.Unmarshal(body, &raw); jsonErr == nil {
			if m, convErr := raw.toDomainMarket(); convErr == nil && m.ConditionID == conditionID {
				return &m, nil
			}
		}
	} else {
		g.logger.WarnContext(ctx, "direct market lookup failed",
			slog.String("condition_id", conditionID),
			slog.String("error", err.Error()),
		)
	}

	// Fallback: linear scan of a bounded bulk listing. Only a successful scan
	// that comes up empty counts as the market being gone.
	raw, err := g.fetchListing(ctx, fallbackScanLimit)
	if err != nil {
		return nil, fmt.Errorf("polymarket: fetch market %s: %w", conditionID, err)
	}
	for i := range raw {
		m, convErr := raw[i].toDomainMarket()
		if convErr != nil {
			continue
		}
		if m.ConditionID == conditionID {
			return &m, nil
		}
	}
	return nil, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (g *GammaClient) fetchListing(ctx context.Context, limit int) ([]apiMarket, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("order", "volume")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var raw []apiMarket
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	return raw, nil
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// matchesVocabulary reports whether question contains any keyword,
// case-insensitively.
func matchesVocabulary(question string, keywords []string) bool {
	q := strings.ToLower(question)
	for _, kw := range keywords {
		if strings.Contains(q, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
