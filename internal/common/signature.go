package common

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA256 of a request body, both on
// ingested batches and on outbound webhook deliveries.
const SignatureHeader = "X-Reactor-Signature"

// SignPayload returns the hex HMAC-SHA256 of body under secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the valid hex HMAC-SHA256 of
// body under secret. Comparison is constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(SignPayload(secret, body))
	if err != nil {
		return false
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return hmac.Equal(expected, got)
}
