package meshnode

import (
	"github.com/bytedance/sonic"

	"meshkv/internal/crdt"
)

// Wire payload shapes, matching spec.md §6's protocol table exactly.

type syncRequestMsg struct {
	NodeID  string `json:"node_id"`
	Version int64  `json:"version"`
}

type syncResponseMsg struct {
	NodeID string        `json:"node_id"`
	State  crdt.Snapshot `json:"state"`
}

type heartbeatMsg struct {
	NodeID    string  `json:"node_id"`
	Version   int64   `json:"version"`
	Timestamp float64 `json:"timestamp"`
}

type peerAdvert struct {
	NodeID string `json:"node_id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

type discoveryMsg struct {
	NodeID string       `json:"node_id"`
	Port   int          `json:"port"`
	Peers  []peerAdvert `json:"peers"`
}

// wireDecode unmarshals a handler's raw payload into one of the message
// structs above. The transport layer already framed/checksummed/deduped the
// bytes; this is the application-level JSON decode, using the same sonic
// codec as the transport package for a consistent wire format end to end.
func wireDecode(payload []byte, out any) error {
	return sonic.Unmarshal(payload, out)
}
