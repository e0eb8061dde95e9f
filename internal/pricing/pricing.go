package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyTable     = errors.New("pricing_table_empty")
	ErrInvalidPrice   = errors.New("invalid_price")
	ErrInvalidVersion = errors.New("invalid_pricing_version")
)

// Table maps a material to its per-unit credit price. A Table is never
// mutated after construction; reloads build a new one.
type Table struct {
	version string
	prices  map[string]decimal.Decimal
}

// Provider hands out the pricing snapshot to use for one settlement.
type Provider interface {
	Current() Table
}

// NewTable parses raw decimal prices keyed by material.
func NewTable(version string, raw map[string]string) (Table, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return Table{}, ErrInvalidVersion
	}
	if len(raw) == 0 {
		return Table{}, ErrEmptyTable
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for material, value := range raw {
		key := NormalizeMaterial(material)
		if key == "" {
			return Table{}, fmt.Errorf("%w: empty material name", ErrInvalidPrice)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return Table{}, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, key, err)
		}
		if price.IsNegative() {
			return Table{}, fmt.Errorf("%w: %s is negative", ErrInvalidPrice, key)
		}
		prices[key] = price
	}

	return Table{version: version, prices: prices}, nil
}

// MustTable is NewTable for fixtures and defaults.
func MustTable(version string, raw map[string]string) Table {
	table, err := NewTable(version, raw)
	if err != nil {
		panic(err)
	}
	return table
}

func (t Table) Version() string { return t.version }

// Price returns the price of material and whether it is priced at all.
func (t Table) Price(material string) (decimal.Decimal, bool) {
	price, ok := t.prices[NormalizeMaterial(material)]
	return price, ok
}

func (t Table) Materials() []string {
	out := make([]string, 0, len(t.prices))
	for material := range t.prices {
		out = append(out, material)
	}
	sort.Strings(out)
	return out
}

func (t Table) IsZero() bool {
	return t.version == "" && len(t.prices) == 0
}

// Static is a Provider that always returns the same table.
type Static Table

func (s Static) Current() Table { return Table(s) }

func NormalizeMaterial(material string) string {
	return strings.ToLower(strings.TrimSpace(material))
}
