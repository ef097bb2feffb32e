package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	h := &Handler{webhookSecret: "topsecret"}
	body := []byte(`{"organization_id":"x","plan":"pro"}`)

	assert.True(t, h.verifySignature(body, sign("topsecret", body)))
	assert.False(t, h.verifySignature(body, sign("wrongsecret", body)))
	assert.False(t, h.verifySignature([]byte("tampered"), sign("topsecret", body)))
	assert.False(t, h.verifySignature(body, ""))
}

func TestVerifySignatureRequiresConfiguredSecret(t *testing.T) {
	h := &Handler{}
	body := []byte("{}")
	// An unset secret must reject everything, including an "empty HMAC".
	assert.False(t, h.verifySignature(body, sign("", body)))
}

func TestValidPlan(t *testing.T) {
	for _, p := range []string{"free", "starter", "pro", "scale"} {
		assert.True(t, validPlan(p), p)
	}
	for _, p := range []string{"", "enterprise", "FREE", "Pro"} {
		assert.False(t, validPlan(p), p)
	}
}
