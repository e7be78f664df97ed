package domain

// Fingerprint derives the product fingerprint from its registration data
// under HashScheme. Field order: product_id, name, batch_number,
// manufactured_at, origin, category, owner.
//
// The caller validates d first; Fingerprint itself never fails.
func Fingerprint(d RegistrationData) string {
	c := newCanonicalHasher()
	c.writeString(d.ProductID)
	c.writeString(d.Name)
	c.writeString(d.BatchNumber)
	c.writeTime(d.ManufacturedAt)
	c.writeString(d.Origin)
	c.writeString(d.Category)
	c.writeString(d.Owner)
	return c.sum()
}
