package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the vendor callback signature
const SignatureHeader = "x-scrapco-signature"

// ComputeSignature returns the hex HMAC-SHA256 of the raw body under the shared secret
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the presented signature in constant time
func VerifySignature(secret string, body []byte, presented string) bool {
	if presented == "" {
		return false
	}
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(presented))
}
