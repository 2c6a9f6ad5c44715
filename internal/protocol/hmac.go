package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HeaderName is the header carrying the signature in both directions.
const HeaderName = "HMAC"

// Sign returns the upper-case hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// Verify reports whether signature is a valid hex HMAC-SHA256 of body under secret.
// Hex case is ignored; an empty or malformed signature never verifies.
func Verify(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
