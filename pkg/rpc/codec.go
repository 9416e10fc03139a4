package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec replaces the default protobuf-wire codec with plain JSON, so
// the façade can use ordinary Go structs as request/response messages
// instead of depending on protoc-generated types. Registered under the
// name "proto" so it is selected without a client-side grpc.CallOption,
// since gRPC's default content-subtype is empty and falls back to the
// codec named "proto".
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: failed to marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: failed to unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
