package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recyclesim/internal/material"
	"github.com/smallbiznis/recyclesim/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSumsQuantityTimesPrice(t *testing.T) {
	table := pricing.MustTable("v1", map[string]string{"plastic": "2", "glass": "3"})

	credits, err := Compute(material.Load{"plastic": 10, "glass": 5}, table)
	require.NoError(t, err)
	assert.True(t, credits.Equal(decimal.NewFromInt(35)), credits.String())
}

func TestComputeUnknownMaterial(t *testing.T) {
	table := pricing.MustTable("v1", map[string]string{"plastic": "2"})

	_, err := Compute(material.Load{"plastic": 1, "steel": 1}, table)
	require.ErrorIs(t, err, ErrUnknownMaterial)
	assert.True(t, IsTerminal(err))
}

func TestComputeExactDecimal(t *testing.T) {
	table := pricing.MustTable("v1", map[string]string{"paper": "0.1", "glass": "0.333"})

	c, err := Breakdown(material.Load{"paper": 3, "glass": 3}, table)
	require.NoError(t, err)
	assert.Equal(t, "1.30", c.Total.StringFixed(2))
	require.Len(t, c.Lines, 2)
	assert.Equal(t, "glass", c.Lines[0].Material)
	assert.Equal(t, "1.00", c.Lines[0].Credits.StringFixed(2))
	assert.Equal(t, "v1", c.PricingVersion)
}

func TestBreakdownTotalMatchesLines(t *testing.T) {
	table := pricing.MustTable("v1", map[string]string{"cans": "0.005", "caps": "0.005"})

	c, err := Breakdown(material.Load{"cans": 1, "caps": 1}, table)
	require.NoError(t, err)
	require.Len(t, c.Lines, 2)

	sum := decimal.Zero
	for _, line := range c.Lines {
		assert.Equal(t, "0.01", line.Credits.StringFixed(2))
		sum = sum.Add(line.Credits)
	}
	assert.True(t, sum.Equal(c.Total))
	assert.Equal(t, "0.02", c.Total.StringFixed(2))
}

func TestComputeEmptyAndZero(t *testing.T) {
	table := pricing.MustTable("v1", map[string]string{"plastic": "2"})

	credits, err := Compute(material.Load{}, table)
	require.NoError(t, err)
	assert.True(t, credits.IsZero())

	credits, err = Compute(material.Load{"plastic": 0}, table)
	require.NoError(t, err)
	assert.True(t, credits.IsZero())
}

func TestComputeRejectsNegative(t *testing.T) {
	table := pricing.MustTable("v1", map[string]string{"plastic": "2"})

	_, err := Compute(material.Load{"plastic": -1}, table)
	require.ErrorIs(t, err, ErrInvalidLoad)
}

func TestReasonCode(t *testing.T) {
	assert.Equal(t, "capacity_exceeded", ReasonCode(ErrCapacityExceeded))
	assert.Equal(t, "invalid_load", ReasonCode(ErrInvalidLoad))
	assert.Equal(t, "unknown_recycler", ReasonCode(ErrUnknownRecycler))
	assert.True(t, IsRecoverable(ErrCapacityExceeded))
	assert.False(t, IsTerminal(ErrCapacityExceeded))
}
