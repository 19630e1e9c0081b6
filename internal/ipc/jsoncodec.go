// Package ipc implements the daemon-facing half of spec §6's grpc command
// surface: a hand-written grpc.ServiceDesc routing the client's command set
// (connect, disconnect, status, account management, gateway listing) to
// internal/tunnelstate and internal/account, since generating faithful
// protobuf stubs would require running protoc. Every message on the wire is
// a plain Go struct carried by jsonCodec, a real grpc-go encoding.Codec —
// google.golang.org/grpc itself is genuinely exercised (framing, metadata,
// streaming), only the message encoding differs from generated .pb.go types.
package ipc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is negotiated via grpc.CallContentSubtype / grpc.ForceCodec on
// both ends of the connection; it must match between client and server.
const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ipc: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

// RegisterCodec installs jsonCodec as the grpc-go encoding.Codec for
// codecName. Call once at process start, before dialing or serving.
func RegisterCodec() {
	encoding.RegisterCodec(jsonCodec{})
}
