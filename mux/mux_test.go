package mux

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitre/hipcheck/endpoint"
	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

func schemaOf(s string) endpoint.SchemaDeriver {
	return func() (json.RawMessage, error) { return json.RawMessage(s), nil }
}

func newRegistry(t *testing.T) *endpoint.Registry {
	t.Helper()
	b := endpoint.NewBuilder(schemaOf(`{}`), schemaOf(`{}`))
	b.Register("echo", func(ctx context.Context, eng interface{}, key interface{}) (interface{}, error) {
		return key, nil
	})
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func TestMultiplexer_RoutesTwoConcurrentSessions(t *testing.T) {
	reg := newRegistry(t)
	m := New(Config{MaxEstSize: protocol.EffectiveMax, Registry: reg})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stream := protocol.NewChanStream(ctx, 8)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, stream) }()

	k1, _ := json.Marshal("one")
	k2, _ := json.Marshal("two")
	select {
	case f := <-stream.Outbox:
		require.Equal(t, int32(0), f.ID)
		require.Equal(t, protocol.StateUnspecified, f.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for startup sentinel frame")
	}

	stream.Inbox <- &protocol.Frame{ID: 1, State: protocol.StateSubmitComplete, QueryName: "echo", Key: []string{string(k1)}}
	stream.Inbox <- &protocol.Frame{ID: 2, State: protocol.StateSubmitComplete, QueryName: "echo", Key: []string{string(k2)}}

	seen := map[int32]string{}
	for i := 0; i < 2; i++ {
		select {
		case f := <-stream.Outbox:
			require.Equal(t, protocol.StateReplyComplete, f.State)
			require.Len(t, f.Output, 1)
			var v string
			require.NoError(t, json.Unmarshal([]byte(f.Output[0]), &v))
			seen[f.ID] = v
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for reply frame")
		}
	}
	assert.Equal(t, "one", seen[1])
	assert.Equal(t, "two", seen[2])
}

func TestMultiplexer_UnseenNonSubmitFrameFailsUnexpectedReply(t *testing.T) {
	reg := newRegistry(t)
	m := New(Config{MaxEstSize: protocol.EffectiveMax, Registry: reg})

	err := m.route(context.Background(), protocol.Frame{ID: 99, State: protocol.StateReplyComplete})
	assert.ErrorIs(t, err, sdkerr.ErrUnexpectedReply)
}

func TestMultiplexer_RequestCrossOverSendsErrorFrameAndDropsSession(t *testing.T) {
	reg := newRegistry(t)
	m := New(Config{MaxEstSize: protocol.EffectiveMax, Registry: reg})

	k, _ := json.Marshal("hi")
	require.NoError(t, m.route(context.Background(), protocol.Frame{
		ID: 7, State: protocol.StateSubmitInProgress, QueryName: "echo", Key: []string{string(k)},
	}))

	err := m.route(context.Background(), protocol.Frame{ID: 7, State: protocol.StateReplyComplete})
	assert.ErrorIs(t, err, sdkerr.ErrUnexpectedReply)

	select {
	case f := <-m.outbound:
		assert.Equal(t, protocol.StateUnspecified, f.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error frame")
	}

	m.mu.Lock()
	_, stillTracked := m.sessions[7]
	m.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestMultiplexer_UnseenSubmitFrameCreatesSession(t *testing.T) {
	reg := newRegistry(t)
	m := New(Config{MaxEstSize: protocol.EffectiveMax, Registry: reg})

	k, _ := json.Marshal("hi")
	err := m.route(context.Background(), protocol.Frame{
		ID: 1, State: protocol.StateSubmitComplete, QueryName: "echo", Key: []string{string(k)},
	})
	require.NoError(t, err)

	select {
	case f := <-m.outbound:
		assert.Equal(t, int32(1), f.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply frame")
	}
}
