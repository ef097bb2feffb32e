package inbox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookVerifySignature(t *testing.T) {
	secret := "channel-secret"
	body := []byte(`{"inbox_id":"x","from":"+15550001111","body":"hi"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, verifySignature(secret, body, good))
	assert.False(t, verifySignature(secret, []byte("tampered"), good))
	assert.False(t, verifySignature("other-secret", body, good))
	assert.False(t, verifySignature(secret, body, ""))
	assert.False(t, verifySignature("", body, good))
}
