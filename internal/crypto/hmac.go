package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// L2 auth header names expected by the execution API.
const (
	HeaderAddress    = "POLY_ADDRESS"
	HeaderAPIKey     = "POLY_API_KEY"
	HeaderTimestamp  = "POLY_TIMESTAMP"
	HeaderPassphrase = "POLY_PASSPHRASE"
	HeaderSignature  = "POLY_SIGNATURE"
	HeaderNonce      = "POLY_NONCE"
)

// HMACAuth holds the credential triple used for second-tier (L2) request
// signing against the execution API.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, base64-encoded
	Passphrase string // API passphrase
}

// L2Headers returns the HTTP headers for an authenticated request. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body), base64-encoded
// and then made URL-safe ('+' -> '-', '/' -> '_'). The secret is
// base64-decoded before use as the HMAC key.
//
// Returned header keys:
//   - POLY_ADDRESS
//   - POLY_API_KEY
//   - POLY_TIMESTAMP
//   - POLY_PASSPHRASE
//   - POLY_SIGNATURE
func (h HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is like L2Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (h HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secretBytes, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// If decoding fails, fall back to raw bytes so the caller gets an
		// obviously-wrong signature rather than a panic.
		secretBytes = []byte(h.Secret)
	}

	message := ts + method + path + body
	sig := hmacSHA256URLSafe(secretBytes, message)

	return map[string]string{
		HeaderAddress:    address,
		HeaderAPIKey:     h.Key,
		HeaderTimestamp:  ts,
		HeaderPassphrase: h.Passphrase,
		HeaderSignature:  sig,
	}
}

// hmacSHA256URLSafe computes HMAC-SHA256 of message using key and returns the
// base64 standard encoding with '+' and '/' replaced by their URL-safe forms,
// as the exchange expects.
func hmacSHA256URLSafe(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	sig = strings.ReplaceAll(sig, "+", "-")
	return strings.ReplaceAll(sig, "/", "_")
}
