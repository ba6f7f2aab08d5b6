package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	got, err := Parse("199.99")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("199.99")))

	// Half-even at the third fractional digit.
	got, err = Parse("10.005")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("10.00")))

	got, err = Parse("10.015")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("10.02")))

	_, err = Parse("0")
	assert.ErrorIs(t, err, ErrNotPositive)

	_, err = Parse("-5.00")
	assert.ErrorIs(t, err, ErrNotPositive)

	// Rounds to zero, which is rejected like any other non-positive amount.
	_, err = Parse("0.001")
	assert.ErrorIs(t, err, ErrNotPositive)

	_, err = Parse("not-a-number")
	assert.Error(t, err)
}

func TestRound(t *testing.T) {
	assert.True(t, Round(decimal.RequireFromString("2.345")).Equal(decimal.RequireFromString("2.34")))
	assert.True(t, Round(decimal.RequireFromString("2.355")).Equal(decimal.RequireFromString("2.36")))
	assert.True(t, Round(decimal.RequireFromString("2.3")).Equal(decimal.RequireFromString("2.30")))
}
