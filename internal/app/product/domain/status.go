package domain

import "fmt"

// ProductStatus represents the lifecycle status of a product.
type ProductStatus string

const (
	StatusManufactured ProductStatus = "manufactured"
	StatusInTransit    ProductStatus = "in_transit"
	StatusStored       ProductStatus = "stored"
	StatusDelivered    ProductStatus = "delivered"
)

// State transition matrix:
//
//	From\To      | manufactured | in_transit | stored | delivered
//	-------------|--------------|------------|--------|----------
//	manufactured |      ✗       |     ✓      |   ✓    |    ✗
//	in_transit   |      ✗       |     ✓      |   ✓    |    ✓
//	stored       |      ✗       |     ✓      |   ✗    |    ✓
//	delivered    |      ✗       |     ✗      |   ✗    |    ✗
var allowedTransitions = map[ProductStatus][]ProductStatus{
	StatusManufactured: {StatusInTransit, StatusStored},
	StatusInTransit:    {StatusStored, StatusDelivered, StatusInTransit},
	StatusStored:       {StatusInTransit, StatusDelivered},
	StatusDelivered:    {},
}

// ParseProductStatus converts a wire value into a ProductStatus.
func ParseProductStatus(s string) (ProductStatus, error) {
	status := ProductStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// IsValid reports whether s is one of the enumerated statuses.
func (s ProductStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s ProductStatus) IsTerminal() bool {
	return s.IsValid() && len(allowedTransitions[s]) == 0
}

// CanTransitionTo reports whether to is reachable from s in one step.
func (s ProductStatus) CanTransitionTo(to ProductStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s.
func (s ProductStatus) AllowedTransitions() []ProductStatus {
	out := make([]ProductStatus, len(allowedTransitions[s]))
	copy(out, allowedTransitions[s])
	return out
}

func (s ProductStatus) String() string {
	return string(s)
}
