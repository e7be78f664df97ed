package domain

import (
	"strings"
	"time"
)

// Registration field names, in canonical fingerprint order.
const (
	FieldProductID      = "product_id"
	FieldName           = "name"
	FieldBatchNumber    = "batch_number"
	FieldManufacturedAt = "manufactured_at"
	FieldOrigin         = "origin"
	FieldCategory       = "category"
	FieldOwner          = "owner"
)

// RegistrationData is the immutable subset of product fields that the
// fingerprint is derived from.
type RegistrationData struct {
	ProductID      string
	Name           string
	BatchNumber    string
	ManufacturedAt time.Time
	Origin         string
	Category       string
	Owner          string
}

// Validate reports the first missing field in canonical order.
func (d RegistrationData) Validate() error {
	switch {
	case blank(d.ProductID):
		return &InvalidRegistrationDataError{Field: FieldProductID}
	case blank(d.Name):
		return &InvalidRegistrationDataError{Field: FieldName}
	case blank(d.BatchNumber):
		return &InvalidRegistrationDataError{Field: FieldBatchNumber}
	case d.ManufacturedAt.IsZero():
		return &InvalidRegistrationDataError{Field: FieldManufacturedAt}
	case blank(d.Origin):
		return &InvalidRegistrationDataError{Field: FieldOrigin}
	case blank(d.Category):
		return &InvalidRegistrationDataError{Field: FieldCategory}
	case blank(d.Owner):
		return &InvalidRegistrationDataError{Field: FieldOwner}
	}
	return nil
}

// Normalized returns a copy with the manufacturing timestamp at ledger precision.
func (d RegistrationData) Normalized() RegistrationData {
	d.ManufacturedAt = NormalizeTimestamp(d.ManufacturedAt)
	return d
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
