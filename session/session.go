// Package session drives one request/response exchange end to end: the
// per-session state machine of spec.md §4.C, including the transient
// nested-query sub-state a plugin-initiated engine.query/batch_query call
// enters while awaiting the core's reply (spec.md §4.C "Nested queries").
package session

import (
	"context"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/trace"

	"github.com/mitre/hipcheck/chunk"
	"github.com/mitre/hipcheck/endpoint"
	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

// phase is the session's position in the state machine of spec.md §4.C.
type phase int

const (
	receivingRequest phase = iota
	running
	nestedQuery
	sendingReply
	closed
)

func (p phase) String() string {
	switch p {
	case receivingRequest:
		return "RECEIVING_REQUEST"
	case running:
		return "RUNNING"
	case nestedQuery:
		return "NESTED_QUERY"
	case sendingReply:
		return "SENDING_REPLY"
	case closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Outbound is how a Session hands a Frame back to its owning multiplexer
// for transmission, without the session needing to know about the shared
// stream or other sessions (spec.md §4.D separates these concerns).
type Outbound func(protocol.Frame) error

// Engine is the handle an endpoint Body uses to issue nested queries back
// through the core (spec.md §4.C "Nested queries", §6 engine.query /
// engine.batch_query). *Session implements it against the live stream;
// *MockEngine implements it against recorded fixtures.
type Engine interface {
	// Query issues a single nested query against target, with key encoded
	// as JSON, and returns the decoded reply value.
	Query(ctx context.Context, target string, key interface{}) (interface{}, error)
	// BatchQuery issues one nested query per key, all addressed to target,
	// and returns one decoded reply value per key in the same order.
	BatchQuery(ctx context.Context, target string, keys []interface{}) ([]interface{}, error)
}

// nestedReply is how the multiplexer hands a completed nested-query
// LogicalQuery back to the Session that's blocked awaiting it.
type nestedReply struct {
	lq  *chunk.LogicalQuery
	err error
}

// Session runs exactly one top-level request/response exchange (spec.md
// §4.C). It is created by a multiplexer on the first SUBMIT_* frame for a
// previously unseen session id and discarded once its reply completes.
type Session struct {
	ID         int32
	publisher  string
	rfd9Compat bool
	maxEstSize int

	registry *endpoint.Registry
	send     Outbound
	log      *logrus.Entry

	phase phase
	synth *chunk.Synthesizer
	tr    trace.Trace

	// nestedWaiting, when non-nil, is the channel the running endpoint
	// body goroutine is blocked receiving from while the session is in
	// the NESTED_QUERY sub-state.
	nestedWaiting chan nestedReply
}

// Config bundles the fixed parameters every Session in a process shares.
type Config struct {
	RFD9Compat bool
	MaxEstSize int
	Registry   *endpoint.Registry
	Log        *logrus.Entry
}

// New starts a Session for id, addressed to publisher, with send as its
// only path back to the wire.
func New(id int32, publisher string, cfg Config, send Outbound) *Session {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		ID:         id,
		publisher:  publisher,
		rfd9Compat: cfg.RFD9Compat,
		maxEstSize: cfg.MaxEstSize,
		registry:   cfg.Registry,
		send:       send,
		log:        log.WithField("session", id),
		phase:      receivingRequest,
		synth:      chunk.NewSynthesizer(cfg.RFD9Compat),
		tr:         trace.New("hipcheck.Session", publisher),
	}
}

// Closed reports whether the session has sent its *_COMPLETE reply (or
// failed irrecoverably) and can be dropped from the multiplexer's table.
func (s *Session) Closed() bool { return s.phase == closed }

// setPhase transitions the session's state machine, recording the
// transition on its trace (visible at /debug/requests) and finishing the
// trace once the session reaches CLOSED.
func (s *Session) setPhase(p phase) {
	s.phase = p
	s.tr.LazyPrintf("-> %s", p)
	if p == closed {
		s.tr.Finish()
	}
}

// HandleFrame feeds one inbound frame to the session. While in
// RECEIVING_REQUEST it accumulates the request via the chunk Synthesizer;
// once the request frame stream completes, it launches the endpoint body in
// its own goroutine and moves to RUNNING. While in NESTED_QUERY, an inbound
// frame is instead routed to the body goroutine awaiting a nested reply.
func (s *Session) HandleFrame(ctx context.Context, f protocol.Frame) error {
	switch s.phase {
	case receivingRequest:
		return s.handleRequestFrame(ctx, f)
	case nestedQuery:
		return s.handleNestedReplyFrame(f)
	default:
		// A frame while RUNNING, SENDING_REPLY (outside nested query), or
		// CLOSED is a protocol violation: the plugin has not signaled
		// readiness for more input (spec.md §4.C edge cases).
		return errors.Wrapf(sdkerr.ErrInvalidState, "frame for session %d while in %s", s.ID, s.phase)
	}
}

func (s *Session) handleRequestFrame(ctx context.Context, f protocol.Frame) error {
	if !f.State.IsSubmit() {
		err := errors.Wrapf(sdkerr.ErrUnexpectedReply, "session %d", s.ID)
		s.sendUnspecified(f.PluginName, f.QueryName, err)
		return err
	}
	lq, err := s.synth.Add(f)
	if err != nil {
		s.sendUnspecified(f.PluginName, f.QueryName, err)
		return err
	}
	if lq == nil {
		return nil
	}
	s.setPhase(running)
	go s.runEndpoint(ctx, lq)
	return nil
}

func (s *Session) handleNestedReplyFrame(f protocol.Frame) error {
	if !f.State.IsReply() {
		return errors.Wrapf(sdkerr.ErrUnexpectedSubmit, "session %d", s.ID)
	}
	lq, err := s.synth.Add(f)
	if err != nil {
		s.nestedWaiting <- nestedReply{err: err}
		return nil
	}
	if lq == nil {
		return nil
	}
	waiting := s.nestedWaiting
	s.nestedWaiting = nil
	s.setPhase(running)
	waiting <- nestedReply{lq: lq}
	return nil
}

// runEndpoint resolves and runs the target endpoint body, then chunks and
// sends its reply. It is the session's sole goroutine once RUNNING begins;
// every error it surfaces becomes a best-effort single UNSPECIFIED-state
// frame, matching spec.md §7's catch-all error boundary.
func (s *Session) runEndpoint(ctx context.Context, lq *chunk.LogicalQuery) {
	output, concerns, err := s.dispatch(ctx, lq)
	if err != nil {
		s.sendError(lq, err)
		return
	}

	s.setPhase(sendingReply)
	reply := chunk.LogicalQuery{
		ID:        s.ID,
		Direction: chunk.Response,
		Publisher: s.publisher,
		Plugin:    lq.Plugin,
		Query:     lq.Query,
		Key:       nil,
		Output:    []interface{}{output},
		Concerns:  concerns,
	}
	frames, err := chunk.Chunk(reply, s.maxEstSize, s.rfd9Compat)
	if err != nil {
		s.sendError(lq, err)
		return
	}
	for _, fr := range frames {
		if err := s.send(fr); err != nil {
			s.log.WithError(err).Warn("sending reply frame")
			break
		}
	}
	s.setPhase(closed)
}

func (s *Session) dispatch(ctx context.Context, lq *chunk.LogicalQuery) (output interface{}, concerns []string, err error) {
	ep, err := s.registry.Resolve(lq.Query)
	if err != nil {
		return nil, nil, err
	}

	if len(lq.Key) != 1 {
		return nil, nil, errors.Wrapf(sdkerr.ErrInvalidState, "request for %q carries %d keys, want 1", lq.Query, len(lq.Key))
	}
	key := lq.Key[0]
	if ep.KeyType != nil {
		key, err = ep.KeyType.Decode(key)
		if err != nil {
			return nil, nil, errors.Wrapf(sdkerr.ErrInvalidJSONInKey, "decoding key for %q: %s", lq.Query, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("endpoint %q panicked: %v", lq.Query, r)
		}
	}()

	out, bodyErr := ep.Body(ctx, s, key)
	if bodyErr != nil {
		return nil, nil, bodyErr
	}
	return out, nil, nil
}

func (s *Session) sendError(lq *chunk.LogicalQuery, err error) {
	s.sendUnspecified(lq.Plugin, lq.Query, err)
}

// sendUnspecified converts err into the single UNSPECIFIED-state frame
// spec.md §7's catch-all error boundary requires for any failure raised
// while RECEIVING_REQUEST, RUNNING, or SENDING_REPLY, and closes the
// session. Best-effort: a failure to send it is only logged.
func (s *Session) sendUnspecified(plugin, query string, err error) {
	s.log.WithError(err).Warn("endpoint body failed")
	frame := protocol.Frame{
		ID:            s.ID,
		State:         protocol.StateUnspecified,
		PublisherName: s.publisher,
		PluginName:    plugin,
		QueryName:     query,
	}
	if sendErr := s.send(frame); sendErr != nil {
		s.log.WithError(sendErr).Warn("sending error frame")
	}
	s.setPhase(closed)
}

// Query implements Engine by entering the NESTED_QUERY sub-state, chunking
// and sending a SUBMIT_* LogicalQuery addressed to target, and blocking
// until the multiplexer routes back a completed reply (spec.md §4.C
// "Nested queries").
func (s *Session) Query(ctx context.Context, target string, key interface{}) (interface{}, error) {
	out, err := s.BatchQuery(ctx, target, []interface{}{key})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// BatchQuery implements Engine.BatchQuery: one SUBMIT_* LogicalQuery per
// key, all sharing target, each awaited and decoded independently in order.
func (s *Session) BatchQuery(ctx context.Context, target string, keys []interface{}) ([]interface{}, error) {
	results := make([]interface{}, len(keys))
	for i, key := range keys {
		out, err := s.issueNestedQuery(ctx, target, key)
		if err != nil {
			return nil, errors.Wrapf(err, "nested query %d to %q", i, target)
		}
		results[i] = out
	}
	return results, nil
}

func (s *Session) issueNestedQuery(ctx context.Context, target string, key interface{}) (interface{}, error) {
	publisher, plugin, query, err := parseTarget(target)
	if err != nil {
		return nil, err
	}
	lq := chunk.LogicalQuery{
		ID:        s.ID,
		Direction: chunk.Request,
		Publisher: publisher,
		Plugin:    plugin,
		Query:     query,
		Key:       []interface{}{key},
	}
	frames, err := chunk.Chunk(lq, s.maxEstSize, s.rfd9Compat)
	if err != nil {
		return nil, err
	}

	waiting := make(chan nestedReply, 1)
	s.nestedWaiting = waiting
	s.setPhase(nestedQuery)
	s.synth = chunk.NewSynthesizer(s.rfd9Compat)

	for _, fr := range frames {
		if err := s.send(fr); err != nil {
			s.setPhase(running)
			return nil, errors.Wrap(sdkerr.ErrSendFailure, err.Error())
		}
	}

	select {
	case reply := <-waiting:
		if reply.err != nil {
			return nil, reply.err
		}
		if len(reply.lq.Output) == 0 {
			return nil, nil
		}
		return reply.lq.Output[0], nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// parseTarget splits a nested-query target of the form
// "publisher/plugin[/query_name]" into its components. A target with no
// '/' fails with sdkerr.ErrInvalidTargetFormat; a target with exactly one
// '/' yields an empty query_name (the plugin's default query).
func parseTarget(target string) (publisher, plugin, query string, err error) {
	parts := strings.SplitN(target, "/", 3)
	if len(parts) < 2 {
		return "", "", "", errors.Wrapf(sdkerr.ErrInvalidTargetFormat, "target %q", target)
	}
	publisher, plugin = parts[0], parts[1]
	if len(parts) == 3 {
		query = parts[2]
	}
	return publisher, plugin, query, nil
}

// valuesEqual is deep JSON-value equality, used by mock-engine test tables
// to match a recorded key regardless of map key ordering (spec.md §9 "mock
// lookup is by value equality, not a hash").
func valuesEqual(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
