package organizations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugRegex(t *testing.T) {
	valid := []string{"acme", "acme-corp", "a1", "0day", "my-long-org-name-2024"}
	for _, s := range valid {
		assert.True(t, slugRegex.MatchString(s), s)
	}

	invalid := []string{
		"a",          // too short
		"-acme",      // leading hyphen
		"Acme",       // uppercase
		"acme corp",  // space
		"acme_corp",  // underscore
		"café",       // non-ascii
		"",
	}
	for _, s := range invalid {
		assert.False(t, slugRegex.MatchString(s), s)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "organizations_slug_key" (SQLSTATE 23505)`)))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}

func TestInviteEmailBodyContainsToken(t *testing.T) {
	body := inviteEmailBody("tok-123")
	assert.Contains(t, body, "tok-123")
}
