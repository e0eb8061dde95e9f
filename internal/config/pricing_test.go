package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPricingHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	content := []byte("pricing:\n  version: \"2026-10\"\n  prices:\n    plastic: 2\n    glass: \"3.50\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewPricingHolder(Config{PricingFile: path})
	require.NoError(t, err)

	table := holder.Current()
	assert.Equal(t, "2026-10", table.Version())

	plastic, ok := table.Price("plastic")
	require.True(t, ok)
	assert.True(t, plastic.Equal(decimal.NewFromInt(2)))

	glass, ok := table.Price("Glass")
	require.True(t, ok)
	assert.True(t, glass.Equal(decimal.RequireFromString("3.5")))

	_, ok = table.Price("steel")
	assert.False(t, ok)
}

func TestNewPricingHolderRejectsNegativePrice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	content := []byte("pricing:\n  version: v1\n  prices:\n    plastic: -1\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewPricingHolder(Config{PricingFile: path})
	assert.Error(t, err)
}
