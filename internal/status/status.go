package status

import "errors"

var (
	ErrInvalidRequest        = errors.New("request: invalid reservation request")
	ErrEventNotFound         = errors.New("event: event not found")
	ErrOrderNotFound         = errors.New("order: order not found")
	ErrClassNotFound         = errors.New("ticket class: ticket class not found")
	ErrInsufficientInventory = errors.New("inventory: not enough tickets available")
	ErrLimitExceeded         = errors.New("limit: per-user ticket limit exceeded")
	ErrConflict              = errors.New("order: transition not allowed from current status")
	ErrTransient             = errors.New("store: transient storage failure")
)

// IsTransient reports whether err is worth retrying instead of
// surfacing to the caller.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
