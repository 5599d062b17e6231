package crdt

import "github.com/bytedance/sonic"

// tupleMarshal/tupleUnmarshal back Register's and Tombstone's custom JSON
// codecs, so the wire shape stays the positional-array form spec.md §6
// specifies ([value, ts, origin] / [ts, origin]) rather than an object.
func tupleMarshal(items []any) ([]byte, error) {
	return sonic.Marshal(items)
}

func tupleUnmarshal(data []byte, out any) error {
	return sonic.Unmarshal(data, out)
}
