package transport

import "github.com/bytedance/sonic"

// encodePayload marshals v to the JSON bytes carried in a Packet's payload.
// sonic is used instead of encoding/json for the same reason gin itself
// reaches for it on the hot path: it is a drop-in, faster JSON codec for
// exactly this marshal/unmarshal shape.
func encodePayload(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// decodePayload unmarshals a packet payload into v.
func decodePayload(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
