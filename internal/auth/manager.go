// Package auth implements the two-tier credential lifecycle for the
// execution API: a wallet-signed handshake (L1) that issues an API key
// triple, and the cached credentials used for per-request HMAC signing (L2).
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quantfold/predictbot/internal/crypto"
	"github.com/quantfold/predictbot/internal/domain"
)

// Manager derives and caches API credentials. Credentials are resolved at
// most once per process unless explicitly invalidated; the preconfigured
// triple is abandoned permanently (within a process run) the first time it
// fails, so the manager never oscillates between bad preconfigured values
// and freshly derived ones.
//
// All state is guarded by one mutex so concurrent callers cannot race an
// invalidation against a re-derivation.
type Manager struct {
	baseURL       string
	httpClient    *http.Client
	signer        *crypto.Signer
	preconfigured domain.Credentials
	logger        *slog.Logger

	mu        sync.Mutex
	cached    *domain.Credentials
	exhausted bool // sticky: set on first auth failure, never cleared
}

// NewManager creates a credential manager. preconfigured may be zero-valued,
// in which case every resolution goes through the signed handshake.
func NewManager(baseURL string, signer *crypto.Signer, preconfigured domain.Credentials, logger *slog.Logger) *Manager {
	return &Manager{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		signer:        signer,
		preconfigured: preconfigured,
		logger:        logger.With(slog.String("component", "auth")),
	}
}

// Credentials returns the cached credentials if present; otherwise it selects
// the preconfigured triple unless that has been flagged exhausted, else it
// performs the wallet-signed derivation and caches the result.
func (m *Manager) Credentials(ctx context.Context) (domain.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return *m.cached, nil
	}

	if !m.exhausted && m.preconfigured.Complete() {
		m.cached = &m.preconfigured
		m.logger.DebugContext(ctx, "using preconfigured credentials")
		return m.preconfigured, nil
	}

	creds, err := m.derive(ctx)
	if err != nil {
		return domain.Credentials{}, err
	}
	m.cached = &creds
	m.logger.InfoContext(ctx, "derived fresh api credentials")
	return creds, nil
}

// Invalidate clears the cache and sets the sticky exhausted flag, guaranteeing
// the next Credentials call performs a derivation rather than reusing the
// preconfigured triple.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
	m.exhausted = true
	m.logger.Warn("credentials invalidated; preconfigured values retired for this process")
}

// Address returns the trading wallet address in hex form.
func (m *Manager) Address() string {
	return m.signer.Address().Hex()
}

// --------------------------------------------------------------------------
// L1 handshake
// --------------------------------------------------------------------------

// derive signs the ClobAuth payload and submits it as L1 headers, trying the
// create endpoint first and falling back to the derive endpoint. The caller
// must hold m.mu.
func (m *Manager) derive(ctx context.Context) (domain.Credentials, error) {
	address := m.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := m.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("auth: sign handshake: %w", err)
	}

	creds, createErr := m.requestCredentials(ctx, http.MethodPost, "/auth/api-key", address, sig, timestamp, nonce)
	if createErr == nil {
		return creds, nil
	}

	m.logger.DebugContext(ctx, "create endpoint refused, falling back to derive",
		slog.String("error", createErr.Error()),
	)

	creds, deriveErr := m.requestCredentials(ctx, http.MethodGet, "/auth/derive-api-key", address, sig, timestamp, nonce)
	if deriveErr != nil {
		return domain.Credentials{}, fmt.Errorf("auth: derive credentials: %w (create: %v)", deriveErr, createErr)
	}
	return creds, nil
}

func (m *Manager) requestCredentials(ctx context.Context, method, path, address, sig string, timestamp, nonce int64) (domain.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, nil)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(crypto.HeaderAddress, address)
	req.Header.Set(crypto.HeaderSignature, sig)
	req.Header.Set(crypto.HeaderTimestamp, fmt.Sprintf("%d", timestamp))
	req.Header.Set(crypto.HeaderNonce, fmt.Sprintf("%d", nonce))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Credentials{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Credentials{}, fmt.Errorf("decode response: %w", err)
	}

	creds := domain.Credentials{
		Key:        parsed.APIKey,
		Secret:     parsed.Secret,
		Passphrase: parsed.Passphrase,
	}
	// A partial triple is unusable; fail loudly instead of caching garbage.
	if !creds.Complete() {
		return domain.Credentials{}, fmt.Errorf("incomplete credential response from %s", path)
	}
	return creds, nil
}
