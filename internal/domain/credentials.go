package domain

import "fmt"

// Credentials is the API key triple used for second-tier (HMAC) request
// signing against the execution API. It is either preconfigured or derived
// via the one-time wallet-signed handshake.
type Credentials struct {
	Key        string
	Secret     string // base64-encoded HMAC key
	Passphrase string
}

// Complete reports whether all three fields are present.
func (c Credentials) Complete() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// String returns a redacted representation safe for logging.
func (c Credentials) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("Credentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}
