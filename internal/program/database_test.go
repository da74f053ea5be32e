package program

import (
	"testing"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabase_RegisterAndLookup(t *testing.T) {
	db := NewDatabase(4)

	s0, err := db.Register(actions.NamedID{Name: "t1"}, Metadata{Kind: actions.KindInvoke})
	require.NoError(t, err)
	s1, err := db.Register(actions.NamedID{Name: "t1", Index: 1}, Metadata{Kind: actions.KindInvoke, Depth: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, s0.Index)
	assert.Equal(t, 1, s1.Index)
	assert.Equal(t, 2, db.Len())

	meta, ok := db.Lookup(actions.NamedID{Name: "t1", Index: 1})
	require.True(t, ok)
	assert.Equal(t, 1, meta.Depth)

	_, ok = db.Lookup(actions.NamedID{Name: "missing"})
	assert.False(t, ok)
}

func TestDatabase_Duplicate(t *testing.T) {
	db := NewDatabase(4)
	_, err := db.Register(actions.NamedID{Name: "x"}, Metadata{})
	require.NoError(t, err)

	_, err = db.Register(actions.NamedID{Name: "x"}, Metadata{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeAlreadyRegistered))
	assert.Equal(t, 1, db.Len())
}

func TestDatabase_CapacityExceeded(t *testing.T) {
	db := NewDatabase(2)
	for i := 0; i < 2; i++ {
		_, err := db.Register(actions.NamedID{Name: "a", Index: i}, Metadata{})
		require.NoError(t, err)
	}

	_, err := db.Register(actions.NamedID{Name: "a", Index: 2}, Metadata{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeCapacityExceeded))
	assert.Equal(t, 2, db.Len())
	assert.Equal(t, 2, db.Capacity())
}

func TestDatabase_FrozenRejectsWrites(t *testing.T) {
	db := NewDatabase(2)
	db.Freeze()
	assert.True(t, db.Frozen())

	_, err := db.Register(actions.NamedID{Name: "late"}, Metadata{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
	assert.Empty(t, db.Slots())
}
