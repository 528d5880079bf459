package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestL2HeadersAt(t *testing.T) {
	auth := HMACAuth{
		Key:        "key-123",
		Secret:     base64.StdEncoding.EncodeToString([]byte("super-secret")),
		Passphrase: "pass-456",
	}

	headers := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)

	if headers[HeaderAddress] != "0xabc" {
		t.Errorf("address header = %q", headers[HeaderAddress])
	}
	if headers[HeaderAPIKey] != "key-123" {
		t.Errorf("api key header = %q", headers[HeaderAPIKey])
	}
	if headers[HeaderTimestamp] != "1700000000" {
		t.Errorf("timestamp header = %q", headers[HeaderTimestamp])
	}
	if headers[HeaderPassphrase] != "pass-456" {
		t.Errorf("passphrase header = %q", headers[HeaderPassphrase])
	}
	if headers[HeaderSignature] == "" {
		t.Fatal("signature header is empty")
	}
}

func TestL2HeadersDeterministic(t *testing.T) {
	auth := HMACAuth{Key: "k", Secret: base64.StdEncoding.EncodeToString([]byte("s")), Passphrase: "p"}

	a := auth.L2HeadersAt("0xabc", "GET", "/data/orders", "", 1700000000)
	b := auth.L2HeadersAt("0xabc", "GET", "/data/orders", "", 1700000000)
	if a[HeaderSignature] != b[HeaderSignature] {
		t.Error("same inputs produced different signatures")
	}

	c := auth.L2HeadersAt("0xabc", "GET", "/data/orders", "", 1700000001)
	if a[HeaderSignature] == c[HeaderSignature] {
		t.Error("different timestamps produced identical signatures")
	}
}

func TestL2SignatureIsURLSafe(t *testing.T) {
	// Brute a few secrets so at least one raw base64 signature would contain
	// '+' or '/'; whatever the input, the output must never contain them.
	for _, secret := range []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff"} {
		auth := HMACAuth{Key: "k", Secret: base64.StdEncoding.EncodeToString([]byte(secret)), Passphrase: "p"}
		for ts := int64(1700000000); ts < 1700000100; ts++ {
			sig := auth.L2HeadersAt("0xabc", "POST", "/order", "body", ts)[HeaderSignature]
			if strings.ContainsAny(sig, "+/") {
				t.Fatalf("signature %q contains non-URL-safe characters", sig)
			}
		}
	}
}

func TestL2HeadersRawSecretFallback(t *testing.T) {
	// A secret that is not valid base64 must still produce a signature.
	auth := HMACAuth{Key: "k", Secret: "!!not-base64!!", Passphrase: "p"}
	headers := auth.L2HeadersAt("0xabc", "GET", "/x", "", 1700000000)
	if headers[HeaderSignature] == "" {
		t.Fatal("expected fallback signature for non-base64 secret")
	}
}
