package resource

// Ring holds the max_delay+1 copies of a single output's resource,
// indexed modulo its length by the current iteration (§3, "per-output
// resource ring").
type Ring struct {
	copies []*Resource
}

// NewRing wraps count pre-created copies. count must equal
// max_delay+1 for the output this ring belongs to.
func NewRing(copies []*Resource) *Ring {
	return &Ring{copies: copies}
}

// Len reports the ring's copy count (max_delay + 1).
func (r *Ring) Len() int { return len(r.copies) }

// At returns the copy a consumer with the given delay reads at
// iteration i: index (i - delay) mod len, per §3. Computed in int64 so
// early iterations (i < delay) land on the correct wrapped slot rather
// than whatever unsigned 64-bit wraparound happens to reduce to modulo
// a non-power-of-two ring length.
func (r *Ring) At(iteration uint64, delay int) *Resource {
	n := int64(len(r.copies))
	if n == 0 {
		return nil
	}
	idx := (int64(iteration) - int64(delay)) % n
	if idx < 0 {
		idx += n
	}
	return r.copies[idx]
}

// Current returns the copy the producer writes at iteration i: index
// i mod len.
func (r *Ring) Current(iteration uint64) *Resource {
	return r.At(iteration, 0)
}

// Copies returns every copy in the ring, for teardown/iteration.
func (r *Ring) Copies() []*Resource { return r.copies }
