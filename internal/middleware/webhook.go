package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

// HeaderSignature carries the HMAC-SHA256 of an inbound hook body.
const HeaderSignature = "X-DealWatch-Signature"

// maxHookBody caps the body read for signature verification.
const maxHookBody = 1 << 20

// WebhookHMAC returns middleware that validates HMAC-SHA256 signatures in
// the given header, in "sha256=<hex>" or raw hex form. The secret is looked
// up per request so a vault reload takes effect without a restart.
// No secret configured yields 503; a missing or wrong signature yields 401.
func WebhookHMAC(secret func() string, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := secret()
			if key == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "webhook secret not configured")
				return
			}

			sig := r.Header.Get(header)
			if sig == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing webhook signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxHookBody))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifyHMAC(body, sig, key) {
				writeJSONError(w, http.StatusUnauthorized, "invalid webhook signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func verifyHMAC(payload []byte, signature, secret string) bool {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(sigBytes, mac.Sum(nil))
}
