package deals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "USD", normalizeCurrency(""))
	assert.Equal(t, "USD", normalizeCurrency("  "))
	assert.Equal(t, "EUR", normalizeCurrency("eur"))
	assert.Equal(t, "BRL", normalizeCurrency(" brl "))
}

func TestValidateTitle(t *testing.T) {
	got, err := validateTitle("  Big deal  ")
	require.NoError(t, err)
	assert.Equal(t, "Big deal", got)

	_, err = validateTitle("   ")
	assert.Error(t, err)
}
