package node

// StateSlot is one opaque per-(node, ring-slot) value (§9, "Opaque
// per-node in-flight state"). The graph allocates one StateSlot per
// node per iteration-slot and never inspects its contents; only the
// node itself, through State, knows the concrete type.
type StateSlot struct {
	value any
}

// State returns the slot's current value type-asserted to T,
// constructing a fresh one with ctor if the slot is empty or holds a
// value of a different type. This is the typed-downcast-or-reinit
// pattern: a node that changes its internal state shape across a
// reconnect does not need special-case migration code, it just gets a
// freshly constructed value from ctor.
func State[T any](slot *StateSlot, ctor func() T) T {
	if v, ok := slot.value.(T); ok {
		return v
	}
	v := ctor()
	slot.value = v
	return v
}

// Reset clears the slot, forcing the next State call to reconstruct
// its value. Called by the runtime when a node returns
// ResetInFlightData.
func (s *StateSlot) Reset() { s.value = nil }
