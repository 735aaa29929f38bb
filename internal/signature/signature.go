package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Prefix is prepended to the hex digest in the signature header
const Prefix = "sha256="

// Verify checks provided against the HMAC-SHA256 of rawBody keyed by secret.
// When enabled is false every payload is accepted.
func Verify(rawBody []byte, provided string, secret []byte, enabled bool) bool {
	if !enabled {
		return true
	}
	if provided == "" {
		return false
	}

	provided = strings.TrimPrefix(provided, Prefix)
	expected := digest(rawBody, secret)

	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// Sign returns the header value a sender would attach to body
func Sign(body, secret []byte) string {
	return Prefix + digest(body, secret)
}

func digest(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
