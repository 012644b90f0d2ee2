package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mitre/hipcheck/sdkerr"
)

// mockEntry is one recorded target/key/output fixture.
type mockEntry struct {
	target string
	key    interface{}
	output interface{}
	err    error
}

// MockEngine is an Engine implementation for exercising endpoint bodies in
// isolation, without a core process on the other end of the stream (spec.md
// §9 "mock-engine test mode"). Lookups compare decoded JSON values directly
// (map and slice structure), not a hash of the encoded bytes, so fixture
// keys need not round-trip through identical JSON text to match.
type MockEngine struct {
	entries []mockEntry
}

// NewMockEngine returns an empty MockEngine.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// Expect records that a query to target with key should return output.
func (m *MockEngine) Expect(target string, key, output interface{}) *MockEngine {
	m.entries = append(m.entries, mockEntry{target: target, key: key, output: output})
	return m
}

// ExpectError records that a query to target with key should fail with err.
func (m *MockEngine) ExpectError(target string, key interface{}, err error) *MockEngine {
	m.entries = append(m.entries, mockEntry{target: target, key: key, err: err})
	return m
}

func (m *MockEngine) lookup(target string, key interface{}) (interface{}, error) {
	for _, e := range m.entries {
		if e.target != target {
			continue
		}
		if !valuesEqual(e.key, key) {
			continue
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.output, nil
	}
	return nil, errors.Wrapf(sdkerr.ErrUnknownEndpoint, "mock engine: no fixture for target %q with key %#v", target, key)
}

// Query implements Engine against the recorded fixtures.
func (m *MockEngine) Query(_ context.Context, target string, key interface{}) (interface{}, error) {
	return m.lookup(target, key)
}

// BatchQuery implements Engine against the recorded fixtures, one lookup per
// key.
func (m *MockEngine) BatchQuery(ctx context.Context, target string, keys []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		v, err := m.Query(ctx, target, k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var _ Engine = (*MockEngine)(nil)
