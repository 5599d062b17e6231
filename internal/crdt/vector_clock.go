package crdt

import "maps"

// VectorClock is a per-origin sequence-number map, carried in every
// snapshot and merged by pointwise maximum. Per spec.md §3 it is
// observational metadata only — monitoring and future optimization — and
// never decides a merge outcome; LWW timestamp + origin tie-break does
// that (see Store.Merge).
type VectorClock map[string]uint64

// Increment bumps the counter for nodeID by one.
func (vc VectorClock) Increment(nodeID string) {
	vc[nodeID]++
}

// Merge combines vc with other by taking the pointwise maximum of every
// origin's counter, returning a new clock.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	merged := vc.Copy()
	for node, cnt := range other {
		if cnt > merged[node] {
			merged[node] = cnt
		}
	}
	return merged
}

// Copy returns a deep copy, since VectorClock is a reference type (a map)
// and callers must not let two clocks alias the same backing storage.
func (vc VectorClock) Copy() VectorClock {
	c := make(VectorClock, len(vc))
	maps.Copy(c, vc)
	return c
}
