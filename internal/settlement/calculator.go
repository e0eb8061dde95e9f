package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recyclesim/internal/material"
	"github.com/smallbiznis/recyclesim/internal/pricing"
)

// CreditPrecision is the number of fractional digits credits are kept at.
const CreditPrecision = 2

// Line is the credit contribution of one material.
type Line struct {
	Material  string
	Quantity  int64
	UnitPrice decimal.Decimal
	Credits   decimal.Decimal
}

type Computation struct {
	Lines          []Line
	Total          decimal.Decimal
	PricingVersion string
}

// Compute returns the credits earned for load under table. It has no side
// effects and the same inputs always give the same result.
func Compute(load material.Load, table pricing.Table) (decimal.Decimal, error) {
	c, err := Breakdown(load, table)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Total, nil
}

// Breakdown is Compute with the per-material lines, in material order. Each
// line is rounded to CreditPrecision and the total is the sum of the rounded
// lines, so a statement always adds up.
func Breakdown(load material.Load, table pricing.Table) (Computation, error) {
	if err := load.Validate(); err != nil {
		return Computation{}, fmt.Errorf("%w: %v", ErrInvalidLoad, err)
	}

	out := Computation{PricingVersion: table.Version(), Total: decimal.Zero}
	for _, name := range load.Materials() {
		qty := load[name]
		price, ok := table.Price(name)
		if !ok {
			return Computation{}, fmt.Errorf("%w: %s", ErrUnknownMaterial, name)
		}
		credits := price.Mul(decimal.NewFromInt(qty)).Round(CreditPrecision)
		out.Lines = append(out.Lines, Line{
			Material:  name,
			Quantity:  qty,
			UnitPrice: price,
			Credits:   credits,
		})
		out.Total = out.Total.Add(credits)
	}
	return out, nil
}
