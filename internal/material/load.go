package material

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	ErrNegativeQuantity = errors.New("negative_quantity")
	ErrEmptyMaterial    = errors.New("empty_material")
	ErrLoadOverflow     = errors.New("load_overflow")
)

// Load is a quantity of bottles per material type.
type Load map[string]int64

// Parse decodes a load stored as a JSON object.
func Parse(raw []byte) (Load, error) {
	if len(raw) == 0 {
		return Load{}, nil
	}
	var load Load
	if err := json.Unmarshal(raw, &load); err != nil {
		return nil, err
	}
	if load == nil {
		load = Load{}
	}
	return load, nil
}

// Validate rejects negative quantities, blank material names and totals that
// do not fit in an int64.
func (l Load) Validate() error {
	var total int64
	for _, name := range l.Materials() {
		if strings.TrimSpace(name) == "" {
			return ErrEmptyMaterial
		}
		qty := l[name]
		if qty < 0 {
			return fmt.Errorf("%w: %s=%d", ErrNegativeQuantity, name, qty)
		}
		if total > math.MaxInt64-qty {
			return ErrLoadOverflow
		}
		total += qty
	}
	return nil
}

// Total sums the quantities. Call Validate first.
func (l Load) Total() int64 {
	var total int64
	for _, qty := range l {
		total += qty
	}
	return total
}

// Materials returns the material names in a stable order.
func (l Load) Materials() []string {
	out := make([]string, 0, len(l))
	for name := range l {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Normalize lower-cases material names, merging duplicates.
func (l Load) Normalize() Load {
	out := make(Load, len(l))
	for name, qty := range l {
		out[strings.ToLower(strings.TrimSpace(name))] += qty
	}
	return out
}

func (l Load) JSON() ([]byte, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int64(l))
}
