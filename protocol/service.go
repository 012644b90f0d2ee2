package protocol

import "context"

// ConfigStatus enumerates the SetConfiguration result codes (spec.md §6).
type ConfigStatus int32

const (
	ConfigStatusUnspecified ConfigStatus = iota
	ConfigStatusNone
	ConfigStatusMissingRequiredConfiguration
	ConfigStatusUnrecognizedConfiguration
	ConfigStatusInvalidConfigurationValue
	ConfigStatusInternalError
	ConfigStatusFileNotFound
	ConfigStatusParseError
	ConfigStatusEnvVarNotSet
	ConfigStatusMissingProgram
)

// QuerySchema is one entry of a GetQuerySchemasResponse: the registered name
// of an endpoint together with its JSON-serialized key and output schemas.
type QuerySchema struct {
	QueryName    string `json:"query_name"`
	KeySchema    string `json:"key_schema"`
	OutputSchema string `json:"output_schema"`
}

// GetQuerySchemasResponse lists the schemas of every registered endpoint.
type GetQuerySchemasResponse struct {
	Entries []QuerySchema `json:"entries"`
}

// SetConfigurationRequest carries the JSON configuration document forwarded
// verbatim to the plugin's Configure hook.
type SetConfigurationRequest struct {
	Configuration string `json:"configuration"`
}

// SetConfigurationResponse is the structured outcome of SetConfiguration.
type SetConfigurationResponse struct {
	Status  ConfigStatus `json:"status"`
	Message string       `json:"message"`
}

// GetDefaultPolicyExpressionResponse carries the plugin's optional default
// policy expression.
type GetDefaultPolicyExpressionResponse struct {
	PolicyExpression string `json:"policy_expression"`
}

// ExplainDefaultQueryResponse carries the plugin's optional explanation of
// its default query.
type ExplainDefaultQueryResponse struct {
	Explanation string `json:"explanation"`
}

// Empty is used for the unary requests that carry no fields.
type Empty struct{}

// QueryServiceServer is the interface a plugin process implements: one
// bidirectional streaming RPC (Query) plus four non-streaming adapters
// (spec.md §4.E, §6). A real deployment registers an implementation with
// RegisterQueryServiceServer against a *grpc.Server configured with
// ServerCodecOption (see codec.go); this interface is the boundary this SDK targets in place
// of protoc-gen-go-grpc output.
type QueryServiceServer interface {
	Query(stream QueryServiceQueryServer) error
	GetQuerySchemas(context.Context, *Empty) (*GetQuerySchemasResponse, error)
	SetConfiguration(context.Context, *SetConfigurationRequest) (*SetConfigurationResponse, error)
	GetDefaultPolicyExpression(context.Context, *Empty) (*GetDefaultPolicyExpressionResponse, error)
	ExplainDefaultQuery(context.Context, *Empty) (*ExplainDefaultQueryResponse, error)
}

// QueryServiceQueryServer is the server-side handle to the bidirectional
// Query stream: a FIFO of inbound Frames and a FIFO sink for outbound ones.
// grpc.ServerStream implementations satisfy this shape; ChanStream (see
// chanstream.go) is the concrete type used outside of a real gRPC server,
// in tests.
type QueryServiceQueryServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	Context() context.Context
}
