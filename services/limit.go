package services

import (
	"fmt"

	"ticket-reservation/internal/status"
)

// CheckPurchaseLimit rejects a reservation whose requested quantity
// would push the user's cumulative completed-ticket total over max.
// Only completed tickets count; concurrent pending holds from the
// same user are not seen here (known race, kept deliberately).
func CheckPurchaseLimit(max, used, requested int) error {
	if max <= 0 {
		return nil
	}
	if used+requested > max {
		remaining := max - used
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Errorf("%w: requested %d but only %d of %d remaining",
			status.ErrLimitExceeded, requested, remaining, max)
	}
	return nil
}
