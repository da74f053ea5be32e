package program

import (
	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/pkg/schema"
)

// Metadata describes a registered action.
type Metadata struct {
	Kind   actions.Kind    `json:"kind"`
	Depth  int             `json:"depth"`
	Parent actions.NamedID `json:"parent"`
	Action *actions.Action `json:"-"`
}

// Slot is the position an action was registered at.
type Slot struct {
	Index int             `json:"index"`
	ID    actions.NamedID `json:"id"`
}

// Database maps NamedIDs to action metadata. It is written only while a
// program is being built and is read-only once frozen, so lookups during a
// run take no lock.
type Database struct {
	capacity int
	slots    []Slot
	entries  map[actions.NamedID]Metadata
	frozen   bool
}

// NewDatabase creates an empty database holding at most capacity entries.
func NewDatabase(capacity int) *Database {
	return &Database{
		capacity: capacity,
		entries:  make(map[actions.NamedID]Metadata, capacity),
	}
}

// Register adds id. It fails with CAPACITY_EXCEEDED when full,
// ALREADY_REGISTERED for a duplicate, and INVALID_TRANSITION once frozen.
func (d *Database) Register(id actions.NamedID, meta Metadata) (Slot, error) {
	if d.frozen {
		return Slot{}, schema.NewErrorf(schema.ErrCodeInvalidTransition, "database is frozen, cannot register %s", id)
	}
	if _, exists := d.entries[id]; exists {
		return Slot{}, schema.NewErrorf(schema.ErrCodeAlreadyRegistered, "action %s already registered", id)
	}
	if len(d.slots) >= d.capacity {
		return Slot{}, schema.NewErrorf(schema.ErrCodeCapacityExceeded,
			"registration capacity %d exceeded by %s", d.capacity, id).
			WithDetails(map[string]any{"capacity": d.capacity})
	}

	slot := Slot{Index: len(d.slots), ID: id}
	d.slots = append(d.slots, slot)
	d.entries[id] = meta
	return slot, nil
}

// Freeze makes the database read-only.
func (d *Database) Freeze() { d.frozen = true }

// Frozen reports whether Freeze has been called.
func (d *Database) Frozen() bool { return d.frozen }

// Lookup returns the metadata of id.
func (d *Database) Lookup(id actions.NamedID) (Metadata, bool) {
	m, ok := d.entries[id]
	return m, ok
}

// Len returns the number of registered actions.
func (d *Database) Len() int { return len(d.slots) }

// Capacity returns the registration limit.
func (d *Database) Capacity() int { return d.capacity }

// Slots returns every slot in registration order.
func (d *Database) Slots() []Slot {
	out := make([]Slot, len(d.slots))
	copy(out, d.slots)
	return out
}
