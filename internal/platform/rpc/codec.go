// Package rpc carries the JSON wire codec, the unary method adapter used by the hand-written
// service descriptors, and the error-kind to gRPC status mapping.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype clients send (application/grpc+json).
const CodecName = "json"

// Codec marshals request and response messages as JSON. It is registered under CodecName so the
// server selects it per call from the content-subtype while protobuf callers (health checks) keep
// the default codec.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: unmarshal %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string { return CodecName }
