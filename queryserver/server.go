// Package queryserver adapts a plugin's endpoint.Registry and a
// mux.Multiplexer onto the protocol.QueryServiceServer transport interface
// (spec.md §4.E, §6).
package queryserver

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mitre/hipcheck/endpoint"
	"github.com/mitre/hipcheck/mux"
	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

// Plugin is the subset of the public plugin surface the server needs at the
// four unary RPCs: configuration and the two policy-advice hooks (spec.md
// §6).
type Plugin interface {
	Configure(raw string) error
	DefaultPolicyExpression() (string, error)
	ExplainDefaultQuery() (string, error)
}

// Server implements protocol.QueryServiceServer over a Registry of
// endpoints and a Plugin's configuration hooks.
type Server struct {
	registry   *endpoint.Registry
	plugin     Plugin
	rfd9Compat bool
	maxEstSize int
	log        *logrus.Entry
}

// Config bundles Server's construction parameters.
type Config struct {
	Registry   *endpoint.Registry
	Plugin     Plugin
	RFD9Compat bool
	MaxEstSize int
	Log        *logrus.Entry
}

// New returns a Server ready to register against a grpc.Server.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		registry:   cfg.Registry,
		plugin:     cfg.Plugin,
		rfd9Compat: cfg.RFD9Compat,
		maxEstSize: cfg.MaxEstSize,
		log:        log,
	}
}

// Query implements the streaming half of protocol.QueryServiceServer by
// running a mux.Multiplexer over the stream for its lifetime (spec.md
// §4.D/§4.E).
func (s *Server) Query(stream protocol.QueryServiceQueryServer) error {
	m := mux.New(mux.Config{
		RFD9Compat: s.rfd9Compat,
		MaxEstSize: s.maxEstSize,
		Registry:   s.registry,
		Log:        s.log,
	})
	return m.Run(stream.Context(), streamAdapter{stream})
}

// streamAdapter narrows protocol.QueryServiceQueryServer to mux.Stream.
type streamAdapter struct {
	protocol.QueryServiceQueryServer
}

func (a streamAdapter) Send(f *protocol.Frame) error { return a.QueryServiceQueryServer.Send(f) }
func (a streamAdapter) Recv() (*protocol.Frame, error) { return a.QueryServiceQueryServer.Recv() }

// GetQuerySchemas returns the key/output JSON Schema pair for every
// registered endpoint (spec.md §6).
func (s *Server) GetQuerySchemas(ctx context.Context, _ *protocol.Empty) (*protocol.GetQuerySchemasResponse, error) {
	eps := s.registry.All()
	out := make([]protocol.QuerySchema, 0, len(eps))
	for _, ep := range eps {
		out = append(out, protocol.QuerySchema{
			QueryName:    ep.Name,
			KeySchema:    string(ep.KeySchema),
			OutputSchema: string(ep.OutputSchema),
		})
	}
	return &protocol.GetQuerySchemasResponse{Entries: out}, nil
}

// SetConfiguration invokes the plugin's Configure hook and translates its
// result (nil, or an sdkerr.ConfigError) into the wire status taxonomy of
// spec.md §6, mirroring the original SDK's error.py::to_set_config_response.
func (s *Server) SetConfiguration(ctx context.Context, req *protocol.SetConfigurationRequest) (*protocol.SetConfigurationResponse, error) {
	err := s.plugin.Configure(req.Configuration)
	if err == nil {
		return &protocol.SetConfigurationResponse{Status: protocol.ConfigStatusNone}, nil
	}

	status, msg := toSetConfigResponse(err)
	return &protocol.SetConfigurationResponse{Status: status, Message: msg}, nil
}

func toSetConfigResponse(err error) (protocol.ConfigStatus, string) {
	switch e := err.(type) {
	case *sdkerr.InvalidValue:
		return protocol.ConfigStatusInvalidConfigurationValue, e.Error()
	case *sdkerr.MissingRequired:
		return protocol.ConfigStatusMissingRequiredConfiguration, e.Error()
	case *sdkerr.Unrecognized:
		return protocol.ConfigStatusUnrecognizedConfiguration, e.Error()
	case *sdkerr.UnspecifiedConfig:
		return protocol.ConfigStatusUnspecified, e.Error()
	default:
		return protocol.ConfigStatusInternalError, err.Error()
	}
}

// GetDefaultPolicyExpression returns the plugin's default Rego policy
// expression, if it has one (spec.md §6).
func (s *Server) GetDefaultPolicyExpression(ctx context.Context, _ *protocol.Empty) (*protocol.GetDefaultPolicyExpressionResponse, error) {
	expr, err := s.plugin.DefaultPolicyExpression()
	if err != nil {
		return nil, err
	}
	return &protocol.GetDefaultPolicyExpressionResponse{PolicyExpression: expr}, nil
}

// ExplainDefaultQuery returns human-readable documentation for the
// plugin's default endpoint, if it has one (spec.md §6).
func (s *Server) ExplainDefaultQuery(ctx context.Context, _ *protocol.Empty) (*protocol.ExplainDefaultQueryResponse, error) {
	explanation, err := s.plugin.ExplainDefaultQuery()
	if err != nil {
		return nil, err
	}
	return &protocol.ExplainDefaultQueryResponse{Explanation: explanation}, nil
}

var _ protocol.QueryServiceServer = (*Server)(nil)
