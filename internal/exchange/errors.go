package exchange

import "errors"

var (
	// ErrInvalidOrder is returned for a non-positive price or quantity or an unknown side.
	// Nothing is mutated when it is returned.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidDepth is returned when a book snapshot is requested with depth <= 0
	ErrInvalidDepth = errors.New("depth must be positive")
	// ErrOrderNotFound is returned when an order is not resting in the book
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotOwner is returned when a user cancels someone else's order
	ErrNotOwner = errors.New("order belongs to a different user")
)
