package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantfold/predictbot/internal/auth"
	"github.com/quantfold/predictbot/internal/crypto"
	"github.com/quantfold/predictbot/internal/domain"
)

// OrderResult is the execution API's response to an order submission.
type OrderResult struct {
	Success bool
	OrderID string
	Status  string // "live", "matched", "delayed"
	Message string
}

// ClobClient is the authenticated REST client for the execution API. Every
// request is HMAC-signed with credentials from the auth manager; on an
// authorization failure it invalidates, re-derives, rebuilds the request
// body against the fresh credentials, and retries exactly once.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	creds      *auth.Manager
	logger     *slog.Logger
}

// NewClobClient creates an execution API client rooted at baseURL, e.g.
// "https://clob.polymarket.com".
func NewClobClient(baseURL string, creds *auth.Manager, logger *slog.Logger) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		creds:  creds,
		logger: logger.With(slog.String("component", "clob")),
	}
}

// bodyFunc builds a request body for the given credentials. Bodies are
// rebuilt on credential rotation because some fields (the envelope's owner)
// embed the API key.
type bodyFunc func(creds domain.Credentials) (any, error)

// PostOrder submits a signed order. The wire envelope differs from the signed
// struct in two protocol quirks that must be preserved: side goes out as the
// string enum rather than the numeric signing code, and the salt is a plain
// integer rather than a string.
func (c *ClobClient) PostOrder(ctx context.Context, signed domain.SignedOrder, orderType string) (OrderResult, error) {
	build := func(creds domain.Credentials) (any, error) {
		return map[string]any{
			"order": map[string]any{
				"salt":          signed.Salt,
				"maker":         signed.Maker,
				"signer":        signed.Signer,
				"taker":         signed.Taker,
				"tokenId":       signed.TokenID,
				"makerAmount":   signed.MakerAmount.String(),
				"takerAmount":   signed.TakerAmount.String(),
				"expiration":    strconv.FormatInt(signed.Expiration, 10),
				"nonce":         strconv.FormatInt(signed.Nonce, 10),
				"feeRateBps":    strconv.FormatInt(signed.FeeRateBps, 10),
				"side":          string(signed.Side),
				"signatureType": signed.SignatureType,
				"signature":     signed.Signature,
			},
			"owner":     creds.Key,
			"orderType": orderType,
		}, nil
	}

	respBody, err := c.doAuthenticated(ctx, http.MethodPost, "/order", build)
	if err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var raw apiOrderResult
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	return OrderResult{
		Success: raw.Success,
		OrderID: raw.OrderID,
		Status:  raw.Status,
		Message: raw.ErrorMsg,
	}, nil
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	path := "/order/" + url.PathEscape(orderID)
	_, err := c.doAuthenticated(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrder retrieves the exchange-side state of a single order.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (OrderResult, error) {
	path := "/data/order/" + url.PathEscape(orderID)
	respBody, err := c.doAuthenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}

	var raw struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	return OrderResult{Success: true, OrderID: raw.ID, Status: raw.Status}, nil
}

// ListOpenOrders returns the IDs of all open orders for this wallet.
func (c *ClobClient) ListOpenOrders(ctx context.Context) ([]string, error) {
	respBody, err := c.doAuthenticated(ctx, http.MethodGet, "/data/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: list orders: %w", err)
	}

	var raw []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode orders: %w", err)
	}
	ids := make([]string, 0, len(raw))
	for _, o := range raw {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// NegRisk reports whether the token's market routes through the risk-isolated
// exchange.
func (c *ClobClient) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	path := "/neg-risk?token_id=" + url.QueryEscape(tokenID)
	respBody, err := c.doAuthenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, fmt.Errorf("polymarket/clob: neg-risk lookup: %w", err)
	}

	var raw struct {
		NegRisk bool `json:"neg_risk"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return false, fmt.Errorf("polymarket/clob: decode neg-risk: %w", err)
	}
	return raw.NegRisk, nil
}

// FeeRateBps returns the maker/taker fee rate for a token in basis points.
func (c *ClobClient) FeeRateBps(ctx context.Context, tokenID string) (int64, error) {
	path := "/fee-rate?token_id=" + url.QueryEscape(tokenID)
	respBody, err := c.doAuthenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: fee-rate lookup: %w", err)
	}

	var raw struct {
		FeeRateBps flexFloat `json:"fee_rate_bps"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode fee-rate: %w", err)
	}
	return int64(raw.FeeRateBps), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticated resolves credentials, signs, and sends the request. On an
// authorization failure it invalidates the credentials, re-derives, rebuilds
// the body, and retries exactly once; a second failure propagates.
func (c *ClobClient) doAuthenticated(ctx context.Context, method, path string, build bodyFunc) ([]byte, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	respBody, err := c.send(ctx, method, path, build, creds)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return respBody, err
	}

	c.logger.WarnContext(ctx, "authorization failure, rotating credentials",
		slog.String("method", method),
		slog.String("path", path),
	)
	c.creds.Invalidate()

	creds, err = c.creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-derive credentials: %w", err)
	}
	return c.send(ctx, method, path, build, creds)
}

// send serializes the body for the given credentials, attaches L2 headers,
// and performs one HTTP round trip.
func (c *ClobClient) send(ctx context.Context, method, path string, build bodyFunc, creds domain.Credentials) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if build != nil {
		body, err := build(creds)
		if err != nil {
			return nil, fmt.Errorf("build request body: %w", err)
		}
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if bodyStr != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	hmacAuth := crypto.HMACAuth{
		Key:        creds.Key,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	}
	for k, v := range hmacAuth.L2Headers(c.creds.Address(), method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain sentinel errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
