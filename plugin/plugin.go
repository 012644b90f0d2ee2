// Package plugin is the public surface a plugin author codes against: a
// registration API for endpoints (spec.md §4.B), the Engine handle an
// endpoint body uses to issue nested queries (spec.md §4.C), and a Serve
// entry point that wires a registry and a Plugin implementation onto a
// grpc.Server (spec.md §4.D/§4.E).
package plugin

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/mitre/hipcheck/endpoint"
	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/queryserver"
	"github.com/mitre/hipcheck/session"
)

// Engine is the handle passed to every endpoint body, letting it issue
// nested queries back through the core (spec.md §4.C). It is an alias of
// session.Engine so callers never need to import package session directly.
type Engine = session.Engine

// Handler is the function signature a plugin author writes for one
// endpoint: given a request key and an Engine for any nested queries it
// needs, produce the query's output.
type Handler func(ctx context.Context, eng Engine, key interface{}) (interface{}, error)

// Plugin is the set of hooks a plugin author implements beyond its
// endpoints: configuration and the two static policy-advice queries
// (spec.md §6).
type Plugin interface {
	// Configure validates and applies a raw JSON configuration document. A
	// non-nil error should be one of the sdkerr.ConfigError kinds to get a
	// structured SetConfiguration response; any other error is reported
	// with status INTERNAL_ERROR.
	Configure(raw string) error
	// DefaultPolicyExpression returns the plugin's default Rego policy
	// expression, or "" if it declares none.
	DefaultPolicyExpression() (string, error)
	// ExplainDefaultQuery returns documentation for the plugin's default
	// endpoint, or "" if it declares none.
	ExplainDefaultQuery() (string, error)
}

// NopPlugin is a Plugin with no configuration and no policy advice, useful
// for plugins that only need endpoints.
type NopPlugin struct{}

func (NopPlugin) Configure(string) error { return nil }

func (NopPlugin) DefaultPolicyExpression() (string, error) { return "", nil }

func (NopPlugin) ExplainDefaultQuery() (string, error) { return "", nil }

// Builder accumulates endpoint registrations for one plugin process.
type Builder struct {
	inner *endpoint.Builder
}

// NewBuilder returns a Builder whose schema derivation delegates to
// keyDeriver/outputDeriver (nil if every registration supplies explicit
// schemas via WithKeySchema/WithOutputSchema).
func NewBuilder(keyDeriver, outputDeriver endpoint.SchemaDeriver) *Builder {
	return &Builder{inner: endpoint.NewBuilder(keyDeriver, outputDeriver)}
}

// Register adds one endpoint under name (empty for the default endpoint).
func (b *Builder) Register(name string, h Handler, opts ...endpoint.Option) *Builder {
	b.inner.Register(name, adapt(h), opts...)
	return b
}

// adapt turns a Handler, written against the public Engine alias, into the
// endpoint.Body shape the registry stores (eng as interface{}, to keep
// package endpoint free of a dependency on package session).
func adapt(h Handler) endpoint.Body {
	return func(ctx context.Context, eng interface{}, key interface{}) (interface{}, error) {
		e, ok := eng.(Engine)
		if !ok {
			return nil, errors.Errorf("internal error: engine handle is %T, not plugin.Engine", eng)
		}
		return h(ctx, e, key)
	}
}

// Config bundles Serve's runtime parameters.
type Config struct {
	// RFD9Compat enables the legacy empty-list placeholder fixup in every
	// chunked frame (spec.md §4.A, §9).
	RFD9Compat bool
	// MaxEstSize bounds the cumulative Key+Output+Concern bytes per
	// produced frame. Zero selects protocol.EffectiveMax.
	MaxEstSize int
	Log        *logrus.Entry
}

// Serve builds the Registry from b, wraps plugin impl and registry behind a
// queryserver.Server, registers it against a new grpc.Server using the JSON
// codec, and blocks serving lis until it closes or ctx is canceled.
func Serve(ctx context.Context, lis net.Listener, b *Builder, impl Plugin, cfg Config) error {
	registry, err := b.inner.Build()
	if err != nil {
		return errors.Wrap(err, "building endpoint registry")
	}

	maxEstSize := cfg.MaxEstSize
	if maxEstSize == 0 {
		maxEstSize = protocol.EffectiveMax
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	srv := queryserver.New(queryserver.Config{
		Registry:   registry,
		Plugin:     impl,
		RFD9Compat: cfg.RFD9Compat,
		MaxEstSize: maxEstSize,
		Log:        log,
	})

	grpcServer := grpc.NewServer(protocol.ServerCodecOption())
	protocol.RegisterQueryServiceServer(grpcServer, srv)

	errCh := make(chan error, 1)
	go func() { errCh <- grpcServer.Serve(lis) }()

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
