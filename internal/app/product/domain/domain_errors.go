package domain

import (
	"errors"
	"fmt"
)

// Domain errors as sentinel values
var (
	// Registration errors
	ErrInvalidRegistrationData = errors.New("invalid registration data")
	ErrDuplicateFingerprint    = errors.New("a product with identical registration data is already registered")
	ErrProductAlreadyExists    = errors.New("product identifier is already registered")

	// Lookup errors
	ErrProductNotFound = errors.New("product not found")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown product status")
	ErrInvalidEventType  = errors.New("invalid activity event type")

	// Chain errors
	ErrChainCorrupt           = errors.New("activity chain is corrupt")
	ErrConcurrentModification = errors.New("product chain was modified concurrently")
)

// InvalidRegistrationDataError names the registration field that failed validation.
type InvalidRegistrationDataError struct {
	Field string
}

func (e *InvalidRegistrationDataError) Error() string {
	return fmt.Sprintf("invalid registration data: %s is required", e.Field)
}

func (e *InvalidRegistrationDataError) Is(target error) bool {
	return target == ErrInvalidRegistrationData
}

// InvalidTransitionError is returned when to is not reachable from From.
type InvalidTransitionError struct {
	From ProductStatus
	To   ProductStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ChainCorruptError blocks writes to a chain whose head cannot be trusted.
// It is never repaired automatically.
type ChainCorruptError struct {
	ProductID string
	Sequence  int64
	Reason    string
}

func (e *ChainCorruptError) Error() string {
	return fmt.Sprintf("activity chain of product %s is corrupt at sequence %d: %s", e.ProductID, e.Sequence, e.Reason)
}

func (e *ChainCorruptError) Is(target error) bool {
	return target == ErrChainCorrupt
}
