// Package crdt holds the replicated key/value state: an LWW (Last-Write-Wins)
// register per key, a tombstone per deleted key, and the deterministic merge
// that lets any two replicas converge once they exchange snapshots.
//
// Big idea, same as the teacher's internal/store package: a single mutex
// protects the whole map so every local operation is linearizable and every
// merge appears atomic to readers. Unlike the teacher's store there is no
// WAL and no on-disk snapshot — this system explicitly has no durable
// persistence across restarts (spec.md §1 Non-goals).
package crdt

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Register is a live value: the payload plus the LWW timestamp and
// originating node that wrote it.
type Register struct {
	Value  any     `json:"-"`
	Ts     float64 `json:"-"`
	Origin string  `json:"-"`
}

// Tombstone marks a key deleted as of (Ts, Origin).
type Tombstone struct {
	Ts     float64 `json:"-"`
	Origin string  `json:"-"`
}

// MarshalJSON encodes a Register as the wire tuple [value, ts, origin],
// matching spec.md §6's SYNC_RESPONSE payload shape.
func (r Register) MarshalJSON() ([]byte, error) {
	return marshalTuple(r.Value, r.Ts, r.Origin)
}

// UnmarshalJSON decodes the [value, ts, origin] wire tuple.
func (r *Register) UnmarshalJSON(data []byte) error {
	var tuple [3]any
	if err := unmarshalTuple(data, &tuple); err != nil {
		return err
	}
	ts, origin, err := tsOrigin(tuple[1], tuple[2])
	if err != nil {
		return err
	}
	r.Value = tuple[0]
	r.Ts = ts
	r.Origin = origin
	return nil
}

// MarshalJSON encodes a Tombstone as the wire tuple [ts, origin].
func (t Tombstone) MarshalJSON() ([]byte, error) {
	return marshalTuple(t.Ts, t.Origin)
}

// UnmarshalJSON decodes the [ts, origin] wire tuple.
func (t *Tombstone) UnmarshalJSON(data []byte) error {
	var tuple [2]any
	if err := unmarshalTuple(data, &tuple); err != nil {
		return err
	}
	ts, origin, err := tsOrigin(tuple[0], tuple[1])
	if err != nil {
		return err
	}
	t.Ts = ts
	t.Origin = origin
	return nil
}

// dominates reports whether (Ts, Origin) strictly lexicographically
// dominates (otherTs, otherOrigin): greater ts, or equal ts and greater
// origin. This is the ≻ comparator from spec.md §4.2.
func dominates(ts float64, origin string, otherTs float64, otherOrigin string) bool {
	if ts != otherTs {
		return ts > otherTs
	}
	return origin > otherOrigin
}

// Snapshot is the full replicable state of a Store: live registers,
// tombstones, the observational vector clock, the version counter, and the
// originating node id. It is exactly the wire shape carried by
// SYNC_RESPONSE.
type Snapshot struct {
	Data        map[string]Register  `json:"data"`
	Tombstones  map[string]Tombstone `json:"tombstones"`
	VectorClock VectorClock          `json:"vector_clock"`
	Version     int64                `json:"version"`
	NodeID      string               `json:"node_id"`
}

// ChangeKind identifies why OnChange fired.
type ChangeKind string

const (
	ChangeSet    ChangeKind = "set"
	ChangeDelete ChangeKind = "delete"
	ChangeSync   ChangeKind = "sync"
)

// OnChange is an optional observer hook, fired after Set, Delete, or a
// merge that modified state. For sync-triggered notifications key is empty
// and value is nil (a merge can touch many keys at once).
type OnChange func(key string, value any, kind ChangeKind)

// Store holds one node's replica of the shared map.
type Store struct {
	nodeID string
	onChg  OnChange

	mu          sync.Mutex
	data        map[string]Register
	tombstones  map[string]Tombstone
	vectorClock VectorClock
	version     int64
}

// New creates an empty Store for nodeID.
func New(nodeID string, onChange OnChange) *Store {
	return &Store{
		nodeID:      nodeID,
		onChg:       onChange,
		data:        make(map[string]Register),
		tombstones:  make(map[string]Tombstone),
		vectorClock: make(VectorClock),
	}
}

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Set writes key=value locally, stamped with the current time and this
// node's id, and clears any tombstone so the key is immediately visible.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	s.data[key] = Register{Value: value, Ts: ts, Origin: s.nodeID}
	s.vectorClock.Increment(s.nodeID)
	delete(s.tombstones, key)
	s.version++

	s.notify(key, value, ChangeSet)
}

// Get returns the live value for key, or (nil, false) if the key is
// missing or shadowed by a tombstone whose (ts, origin) is at or above the
// register's.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if tomb, tombstoned := s.tombstones[key]; tombstoned && !dominates(reg.Ts, reg.Origin, tomb.Ts, tomb.Origin) {
		return nil, false
	}
	return reg.Value, true
}

// Delete tombstones key locally. The underlying live register, if any, is
// not eagerly removed — Get and Merge shadow it via the tombstone, per
// spec.md §4.2.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	s.tombstones[key] = Tombstone{Ts: ts, Origin: s.nodeID}
	s.vectorClock.Increment(s.nodeID)
	s.version++

	s.notify(key, nil, ChangeDelete)
}

// Keys returns the live key set: keys in data minus keys shadowed by a
// tombstone at or above their register's (ts, origin), as in Get.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k, reg := range s.data {
		if tomb, tombstoned := s.tombstones[k]; !tombstoned || dominates(reg.Ts, reg.Origin, tomb.Ts, tomb.Origin) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// AllData returns a copy of every live key/value pair.
func (s *Store) AllData() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any, len(s.data))
	for k, reg := range s.data {
		if tomb, tombstoned := s.tombstones[k]; tombstoned && !dominates(reg.Ts, reg.Origin, tomb.Ts, tomb.Origin) {
			continue
		}
		out[k] = reg.Value
	}
	return out
}

// Version returns the current monotone version counter.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Snapshot deep-copies the entire replicable state for transmission to a
// peer.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make(map[string]Register, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	tombstones := make(map[string]Tombstone, len(s.tombstones))
	for k, v := range s.tombstones {
		tombstones[k] = v
	}

	return Snapshot{
		Data:        data,
		Tombstones:  tombstones,
		VectorClock: s.vectorClock.Copy(),
		Version:     s.version,
		NodeID:      s.nodeID,
	}
}

// Merge applies a remote snapshot's data, tombstones, and vector clock to
// this store using the deterministic LWW + origin-tie-break join from
// spec.md §4.2. It reports whether anything changed.
//
// Merge is commutative, associative, and idempotent: re-applying any
// snapshot is a no-op because the ≻ comparator used for should_update is
// strict, so a value already locally at-or-above a given (ts, origin)
// never loses to it again.
func (s *Store) Merge(remoteData map[string]Register, remoteTombstones map[string]Tombstone, remoteVC VectorClock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	modified := false

	for key, remote := range remoteData {
		shouldUpdate := false
		if local, ok := s.data[key]; !ok || dominates(remote.Ts, remote.Origin, local.Ts, local.Origin) {
			shouldUpdate = true
		}

		if tomb, ok := s.tombstones[key]; ok {
			// Tombstone wins ties against live values at identical (ts, origin):
			// dominates(tombTs, tombOrigin, remoteTs, remoteOrigin) treats equal
			// (ts, origin) as non-dominating, so we check the reverse (>=) by
			// also rejecting the equal case explicitly per spec.md §4.2.
			if !dominates(remote.Ts, remote.Origin, tomb.Ts, tomb.Origin) {
				shouldUpdate = false
			}
		}

		if shouldUpdate {
			s.data[key] = remote
			modified = true
		}
	}

	for key, remote := range remoteTombstones {
		shouldUpdate := false
		if local, ok := s.tombstones[key]; !ok || dominates(remote.Ts, remote.Origin, local.Ts, local.Origin) {
			shouldUpdate = true
		}

		if shouldUpdate {
			s.tombstones[key] = remote
			if live, ok := s.data[key]; ok && dominates(remote.Ts, remote.Origin, live.Ts, live.Origin) {
				delete(s.data, key)
			}
			modified = true
		}
	}

	s.vectorClock = s.vectorClock.Merge(remoteVC)

	if modified {
		s.version++
		s.notify("", nil, ChangeSync)
	}
	return modified
}

func (s *Store) notify(key string, value any, kind ChangeKind) {
	if s.onChg == nil {
		return
	}
	s.onChg(key, value, kind)
}

func marshalTuple(items ...any) ([]byte, error) {
	return tupleMarshal(items)
}

func unmarshalTuple(data []byte, out any) error {
	return tupleUnmarshal(data, out)
}

func tsOrigin(tsAny, originAny any) (float64, string, error) {
	ts, ok := tsAny.(float64)
	if !ok {
		return 0, "", fmt.Errorf("crdt: expected numeric ts, got %T", tsAny)
	}
	origin, ok := originAny.(string)
	if !ok {
		return 0, "", fmt.Errorf("crdt: expected string origin, got %T", originAny)
	}
	return ts, origin, nil
}
