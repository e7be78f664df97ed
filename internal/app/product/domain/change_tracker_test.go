package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeTracker(t *testing.T) {
	ct := NewChangeTracker()
	assert.False(t, ct.HasChanges())
	assert.False(t, ct.Any(FieldStatus, FieldHead))

	ct.MarkDirty(FieldUpdatedAt)
	ct.MarkDirty(FieldHead)
	ct.MarkDirty(FieldHead)

	assert.True(t, ct.HasChanges())
	assert.True(t, ct.Dirty(FieldHead))
	assert.False(t, ct.Dirty(FieldStatus))
	assert.True(t, ct.Any(FieldStatus, FieldHead))
	assert.Equal(t, []string{FieldHead, FieldUpdatedAt}, ct.DirtyFields())

	ct.Clear()
	assert.False(t, ct.HasChanges())
	assert.Empty(t, ct.DirtyFields())
}

func TestChangeTracker_TransitionMarksFields(t *testing.T) {
	now := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	p, genesis, err := NewProduct(validRegistration(), "", now)
	require.NoError(t, err)
	assert.False(t, p.Changes().HasChanges())

	_, err = p.RecordActivity("inspection", ActivityDetails{}, genesis, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{FieldHead, FieldUpdatedAt}, p.Changes().DirtyFields())

	p.Changes().Clear()
	_, err = p.ApplyTransition(StatusStored, ActivityDetails{}, nil, now.Add(time.Hour))
	assert.Error(t, err)
	assert.False(t, p.Changes().HasChanges(), "a rejected transition touches nothing")
}
