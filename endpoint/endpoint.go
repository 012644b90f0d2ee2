// Package endpoint holds the process-wide table of declared query
// endpoints (spec.md §4.B). Endpoints are registered once, at process
// start, through a Builder and then handed to the server as an immutable
// Registry — replacing the Python SDK's module-load-time decorator side
// effects with an explicit construction step (spec.md §9 Design Notes).
package endpoint

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/mitre/hipcheck/sdkerr"
)

// Body is the user-authored endpoint implementation. key is the decoded
// JSON key value, or the result of KeyType's Decode if one was supplied.
// The session.Engine handle lets the body issue nested queries; that type
// lives in package session, which imports this package, so Body takes the
// handle as a plain interface{} to avoid an import cycle.
type Body func(ctx context.Context, eng interface{}, key interface{}) (interface{}, error)

// KeyType, when supplied, decodes a raw JSON key value into the type the
// Body actually expects. The reflective machinery that would derive this
// from a Go type automatically is the "user-authored endpoint bodies" and
// "auto-generated domain data types" concerns spec.md §1 places out of
// scope; KeyType is the seam a generator (or a hand-written adapter) hooks
// into.
type KeyType interface {
	Decode(raw interface{}) (interface{}, error)
}

// SchemaDeriver derives a JSON Schema document from a registration when one
// isn't supplied explicitly. Real schema derivation from Go types (the
// out-of-scope "JSON Schema derivation from user types" of spec.md §1) is
// injected by the caller; the zero value always fails, matching a plugin
// that declares no deriver and must supply explicit schemas.
type SchemaDeriver func() (json.RawMessage, error)

// Endpoint is one registered query handler (spec.md §3).
type Endpoint struct {
	Name         string
	Body         Body
	KeyType      KeyType
	KeySchema    json.RawMessage
	OutputSchema json.RawMessage
}

// IsDefault reports whether e is the default endpoint, selected when a
// target string omits its endpoint component (spec.md GLOSSARY). This
// resolves the Python source's `default_query` / `Query.is_default`
// reference to an unbound `name` (spec.md §9 Open Questions): the intended
// check is simply whether the registered name is empty.
func (e *Endpoint) IsDefault() bool { return e.Name == "" }

// Option customizes a registration.
type Option func(*Endpoint)

// WithKeyType supplies a typed key decoder.
func WithKeyType(kt KeyType) Option {
	return func(e *Endpoint) { e.KeyType = kt }
}

// WithKeySchema supplies an explicit key JSON Schema, skipping derivation.
func WithKeySchema(schema json.RawMessage) Option {
	return func(e *Endpoint) { e.KeySchema = schema }
}

// WithOutputSchema supplies an explicit output JSON Schema, skipping
// derivation.
func WithOutputSchema(schema json.RawMessage) Option {
	return func(e *Endpoint) { e.OutputSchema = schema }
}

// AsDefault registers the endpoint under the empty name, making it the
// target of a request whose target string omits an endpoint component.
func AsDefault() Option {
	return func(e *Endpoint) { e.Name = "" }
}

// Builder accumulates registrations prior to Build. A Builder is not safe
// for concurrent use; it's expected to run once, sequentially, during
// process start.
type Builder struct {
	keyDeriver    SchemaDeriver
	outputDeriver SchemaDeriver
	entries       map[string]*Endpoint
	haveDefault   bool
	err           error
}

// NewBuilder returns a Builder whose schema derivation (when a registration
// omits KeySchema/OutputSchema) delegates to keyDeriver/outputDeriver.
func NewBuilder(keyDeriver, outputDeriver SchemaDeriver) *Builder {
	return &Builder{
		keyDeriver:    keyDeriver,
		outputDeriver: outputDeriver,
		entries:       make(map[string]*Endpoint),
	}
}

// Register validates and adds one endpoint. name == "" registers the
// default endpoint; at most one default registration is permitted (spec.md
// §4.B). The first error encountered is sticky and returned by Build.
func (b *Builder) Register(name string, body Body, opts ...Option) *Builder {
	if b.err != nil {
		return b
	}
	if body == nil {
		b.err = errors.Errorf("endpoint %q: body must not be nil", name)
		return b
	}

	ep := &Endpoint{Name: name, Body: body}
	for _, opt := range opts {
		opt(ep)
	}
	if ep.Name == "" {
		name = "" // AsDefault
	}
	ep.Name = name // other opts must not rename the endpoint out from under Register's key

	if ep.KeySchema == nil {
		if b.keyDeriver == nil {
			b.err = errors.Errorf("endpoint %q: no key schema given and no deriver configured", name)
			return b
		}
		schema, err := b.keyDeriver()
		if err != nil {
			b.err = errors.Wrapf(err, "endpoint %q: deriving key schema", name)
			return b
		}
		ep.KeySchema = schema
	}
	if ep.OutputSchema == nil {
		if b.outputDeriver == nil {
			b.err = errors.Errorf("endpoint %q: no output schema given and no deriver configured", name)
			return b
		}
		schema, err := b.outputDeriver()
		if err != nil {
			b.err = errors.Wrapf(err, "endpoint %q: deriving output schema", name)
			return b
		}
		ep.OutputSchema = schema
	}

	if name == "" {
		if b.haveDefault {
			b.err = errors.New("a default endpoint is already registered")
			return b
		}
		b.haveDefault = true
	} else if _, exists := b.entries[name]; exists {
		b.err = errors.Errorf("endpoint %q is already registered", name)
		return b
	}

	b.entries[name] = ep
	return b
}

// Build finalizes the Builder into an immutable Registry, or returns the
// first registration error encountered.
func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	entries := make(map[string]*Endpoint, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	return &Registry{entries: entries}, nil
}

// Registry is the immutable, process-wide set of declared endpoints
// (spec.md §3 "Endpoints live for the lifetime of the process").
type Registry struct {
	entries map[string]*Endpoint
}

// Resolve looks up an endpoint by name ("" for the default). It returns
// sdkerr.ErrUnknownEndpoint if no such endpoint is registered.
func (r *Registry) Resolve(name string) (*Endpoint, error) {
	ep, ok := r.entries[name]
	if !ok {
		return nil, errors.Wrapf(sdkerr.ErrUnknownEndpoint, "endpoint %q", name)
	}
	return ep, nil
}

// All returns every registered endpoint, in no particular order.
func (r *Registry) All() []*Endpoint {
	out := make([]*Endpoint, 0, len(r.entries))
	for _, ep := range r.entries {
		out = append(out, ep)
	}
	return out
}
