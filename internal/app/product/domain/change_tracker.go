package domain

import "slices"

// ChangeTracker records which mutable product fields a transition touched,
// so backends write only those columns next to the head precondition.
type ChangeTracker struct {
	dirtyFields map[string]bool
}

// NewChangeTracker creates a new ChangeTracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		dirtyFields: make(map[string]bool),
	}
}

// MarkDirty marks a field as modified.
func (ct *ChangeTracker) MarkDirty(field string) {
	ct.dirtyFields[field] = true
}

// Dirty checks if a field has been modified.
func (ct *ChangeTracker) Dirty(field string) bool {
	return ct.dirtyFields[field]
}

// Any reports whether at least one of fields is dirty.
func (ct *ChangeTracker) Any(fields ...string) bool {
	return slices.ContainsFunc(fields, ct.Dirty)
}

// Clear clears all dirty field markers.
func (ct *ChangeTracker) Clear() {
	clear(ct.dirtyFields)
}

// HasChanges returns true if any field has been modified.
func (ct *ChangeTracker) HasChanges() bool {
	return len(ct.dirtyFields) > 0
}

// DirtyFields returns the dirty field names in sorted order.
func (ct *ChangeTracker) DirtyFields() []string {
	fields := make([]string, 0, len(ct.dirtyFields))
	for field := range ct.dirtyFields {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return fields
}
