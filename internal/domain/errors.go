package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidSide      = errors.New("invalid_side")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrInvalidOrder     = errors.New("invalid_order")
	ErrPriceUnavailable = errors.New("price_unavailable")
	ErrOrderNotFound    = errors.New("order_not_found")
	ErrWebhookNotFound  = errors.New("webhook_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsRejection reports whether err is one of the admission errors that
// leave the book untouched and can be fixed by resubmitting.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidSide) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrPriceUnavailable)
}
