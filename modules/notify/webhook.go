package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound webhook signature. An empty secret
// disables verification.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" {
		return nil
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return ErrMissingSignature
	}
	want := Sign(secret, payload)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(want)) {
		return ErrInvalidSignature
	}
	return nil
}

// Webhook verifies inbound webhook payloads against the configured secret.
type Webhook struct {
	secret string
}

// NewWebhook returns a verifier for secret. An empty secret accepts every
// payload.
func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: secret}
}

// Enabled reports whether signatures are checked.
func (w *Webhook) Enabled() bool {
	return w != nil && w.secret != ""
}

// Verify checks signature against payload.
func (w *Webhook) Verify(payload []byte, signature string) error {
	if w == nil {
		return nil
	}
	return VerifySignature(w.secret, payload, signature)
}
