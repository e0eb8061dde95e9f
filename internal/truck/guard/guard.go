package guard

import (
	"errors"
	"fmt"

	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
)

var ErrInvalidTransition = errors.New("invalid_truck_transition")

var rank = map[truckdomain.Status]int{
	truckdomain.StatusIdle:      0,
	truckdomain.StatusEnRoute:   1,
	truckdomain.StatusUnloading: 2,
	truckdomain.StatusEmpty:     3,
}

// EnsureCanTransition allows forward moves within a delivery cycle and the
// step from empty back to idle, which opens a new cycle.
func EnsureCanTransition(from, to truckdomain.Status) error {
	fromRank, ok := rank[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	toRank, ok := rank[to]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if StartsNewCycle(from, to) {
		return nil
	}
	if toRank <= fromRank {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func StartsNewCycle(from, to truckdomain.Status) bool {
	return from == truckdomain.StatusEmpty && to == truckdomain.StatusIdle
}
