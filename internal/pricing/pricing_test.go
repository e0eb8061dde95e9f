package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	table, err := NewTable(" v2 ", map[string]string{" Plastic ": "2.50", "glass": "3"})
	require.NoError(t, err)
	assert.Equal(t, "v2", table.Version())
	assert.Equal(t, []string{"glass", "plastic"}, table.Materials())

	price, ok := table.Price("PLASTIC")
	require.True(t, ok)
	assert.Equal(t, "2.5", price.String())

	_, ok = table.Price("paper")
	assert.False(t, ok)
}

func TestNewTableRejects(t *testing.T) {
	cases := []struct {
		name    string
		version string
		raw     map[string]string
		want    error
	}{
		{"blank version", "", map[string]string{"glass": "1"}, ErrInvalidVersion},
		{"empty", "v1", nil, ErrEmptyTable},
		{"blank material", "v1", map[string]string{" ": "1"}, ErrInvalidPrice},
		{"not a number", "v1", map[string]string{"glass": "three"}, ErrInvalidPrice},
		{"negative", "v1", map[string]string{"glass": "-1"}, ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable(tc.version, tc.raw)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStaticProvider(t *testing.T) {
	table := MustTable("v1", map[string]string{"glass": "3"})
	var p Provider = Static(table)
	assert.Equal(t, "v1", p.Current().Version())
	assert.True(t, Table{}.IsZero())
	assert.Panics(t, func() { MustTable("", nil) })
}
