package esign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Verifier checks that a webhook payload was produced by the provider. It
// must be fed the exact raw bytes of the request body: re-serializing the
// payload reorders keys and invalidates the hash.
type Verifier struct {
	key []byte
}

func NewVerifier(webhookKey string) *Verifier {
	return &Verifier{key: []byte(webhookKey)}
}

// Verify computes the provider's HMAC-SHA256 over body and compares it, in
// constant time, against each candidate in turn. The provider presents its
// signature in either of two header slots depending on configuration
// version; both are permanently valid, so all candidates are tried. The
// first match is returned.
func (v *Verifier) Verify(body []byte, candidates []string) (string, bool) {
	if len(v.key) == 0 {
		return "", false
	}

	mac := hmac.New(sha256.New, v.key)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		sig := strings.TrimSpace(candidate)
		if sig == "" {
			continue
		}
		decoded, ok := decodeSignature(sig)
		if !ok {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return candidate, true
		}
	}
	return "", false
}

// decodeSignature accepts hex (with or without a sha256= prefix) and base64
// encodings, the two formats the provider has shipped.
func decodeSignature(sig string) ([]byte, bool) {
	if strings.HasPrefix(strings.ToLower(sig), "sha256=") {
		sig = sig[len("sha256="):]
	}
	if decoded, err := hex.DecodeString(sig); err == nil {
		return decoded, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil {
		return decoded, true
	}
	return nil, false
}

// Sign produces the signature the provider would send for body. Used by
// tests and by the outbound request path when the provider echoes our key.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
