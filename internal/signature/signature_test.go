package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func hmacHex(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerify(t *testing.T) {
	secret := []byte("s3cr3t")
	payloads := [][]byte{
		[]byte(`{"action":"opened"}`),
		[]byte(``),
		[]byte("{\n  \"zen\": \"Keep it logically awesome.\"\n}"),
	}

	for _, body := range payloads {
		good := hmacHex(body, secret)

		assert.True(t, Verify(body, good, secret, true), "bare hex digest")
		assert.True(t, Verify(body, "sha256="+good, secret, true), "prefixed digest")
		assert.False(t, Verify(body, good+"x", secret, true), "trailing garbage")
		assert.False(t, Verify(body, "sha256="+good+"x", secret, true), "prefixed trailing garbage")
		assert.False(t, Verify(body, good, []byte("other"), true), "wrong secret")
		assert.True(t, Verify(body, "anything", secret, false), "disabled")
		assert.True(t, Verify(body, "", secret, false), "disabled without header")
	}
}

func TestVerifyMissingSignature(t *testing.T) {
	assert.False(t, Verify([]byte("{}"), "", []byte("secret"), true))
	assert.False(t, Verify([]byte("{}"), "sha256=", []byte("secret"), true))
}

func TestVerifyIsSensitiveToBodyBytes(t *testing.T) {
	secret := []byte("secret")
	sig := Sign([]byte(`{"a":1}`), secret)

	// Re-serialized JSON with different whitespace must not verify.
	assert.False(t, Verify([]byte(`{"a": 1}`), sig, secret, true))
}

func TestSign(t *testing.T) {
	body := []byte(`{"ok":true}`)
	secret := []byte("k")

	sig := Sign(body, secret)
	assert.Equal(t, "sha256="+hmacHex(body, secret), sig)
	assert.True(t, Verify(body, sig, secret, true))
}
