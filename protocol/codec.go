package protocol

import (
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this package's Codec registers
// under. A client dials with grpc.CallContentSubtype(CodecName) (or the
// server is constructed with ForceServerCodec, see ServerCodecOption) to use it
// in place of the default protobuf codec.
const CodecName = "hipcheck-json"

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonCodec is a grpc/encoding.Codec that marshals messages as JSON via
// json-iterator rather than protobuf. It stands in for the real protobuf
// wire format that a .proto-compiled service would use, which spec.md §1
// places out of this SDK's scope; Frame and the four response types are
// plain Go structs with json tags, not generated protobuf messages, so this
// codec is what actually lets them travel a grpc.Server.
type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return jsonAPI.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ServerCodecOption returns the grpc.ServerOption that forces every RPC
// served by the resulting *grpc.Server to use this package's JSON codec.
func ServerCodecOption() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}
