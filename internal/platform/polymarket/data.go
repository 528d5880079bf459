package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/quantfold/predictbot/internal/domain"
)

// DataClient is the unauthenticated client for the public positions API.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDataClient creates a public data client rooted at baseURL, e.g.
// "https://data-api.polymarket.com".
func NewDataClient(baseURL string, logger *slog.Logger) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With(slog.String("component", "data_api")),
	}
}

// Positions returns the venue's live positions for a wallet. Entries with
// size <= 0 are filtered out.
func (d *DataClient) Positions(ctx context.Context, user string) ([]domain.LivePosition, error) {
	params := url.Values{}
	params.Set("user", user)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/positions?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("polymarket/data: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var raw []apiLivePosition
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}

	out := make([]domain.LivePosition, 0, len(raw))
	for i := range raw {
		if float64(raw[i].Size) <= 0 {
			continue
		}
		out = append(out, raw[i].toDomain())
	}

	d.logger.DebugContext(ctx, "fetched live positions",
		slog.String("user", user),
		slog.Int("count", len(out)),
	)
	return out, nil
}
