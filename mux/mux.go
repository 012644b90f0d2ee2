// Package mux demultiplexes one bidirectional gRPC stream into many
// concurrent per-session exchanges and funnels every session's outbound
// frames back onto that single stream (spec.md §4.D).
package mux

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mitre/hipcheck/endpoint"
	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
	"github.com/mitre/hipcheck/session"
)

// Config bundles the fixed parameters every session the Multiplexer starts
// shares, mirroring session.Config.
type Config struct {
	RFD9Compat bool
	MaxEstSize int
	Registry   *endpoint.Registry
	Log        *logrus.Entry
}

// Multiplexer owns the table of live sessions for one stream and the single
// outbound pump draining their replies onto it (spec.md §4.D).
type Multiplexer struct {
	cfg Config
	log *logrus.Entry

	mu       sync.Mutex
	sessions map[int32]*session.Session

	outbound chan protocol.Frame
}

// New returns a Multiplexer ready to Run against one stream.
func New(cfg Config) *Multiplexer {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Multiplexer{
		cfg:      cfg,
		log:      log,
		sessions: make(map[int32]*session.Session),
		outbound: make(chan protocol.Frame, 64),
	}
}

// Stream is the minimal surface a Multiplexer needs from a gRPC (or fake)
// bidirectional stream.
type Stream interface {
	Send(*protocol.Frame) error
	Recv() (*protocol.Frame, error)
}

// Run pumps stream until it ends or ctx is canceled: one goroutine reads
// inbound frames and routes them to sessions (creating new ones on
// unseen SUBMIT_* frames per spec.md §4.D), while a second drains the
// outbound channel every session writes its replies to. When the inbound
// goroutine returns, the shared errgroup context stops the outbound one
// (mirroring the teacher's pairing of a receive loop with a send loop under
// one cancellation scope); the inbound goroutine does not watch that
// context and stops only when stream.Recv returns an error.
func (m *Multiplexer) Run(ctx context.Context, stream Stream) error {
	// The host side of the stream needs one frame to observe before it
	// considers the stream initialized; this sentinel carries no session
	// and is never replied to (spec.md §4.D).
	m.outbound <- protocol.Frame{ID: 0, State: protocol.StateUnspecified}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.pumpInbound(ctx, stream)
	})
	g.Go(func() error {
		return m.pumpOutbound(ctx, stream)
	})

	return g.Wait()
}

func (m *Multiplexer) pumpOutbound(ctx context.Context, stream Stream) error {
	for {
		select {
		case frame, ok := <-m.outbound:
			if !ok {
				return nil
			}
			if err := stream.Send(&frame); err != nil {
				return errors.Wrap(sdkerr.ErrSendFailure, err.Error())
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Multiplexer) pumpInbound(ctx context.Context, stream Stream) error {
	for {
		f, err := stream.Recv()
		if err != nil {
			return err
		}
		if err := m.route(ctx, *f); err != nil {
			m.log.WithError(err).WithField("frame_id", f.ID).Warn("routing inbound frame")
		}
	}
}

// route dispatches one inbound frame to its session, creating a new Session
// when the frame is a SUBMIT_* for an id not yet in the table, and failing
// with sdkerr.ErrUnexpectedReply for any other id not yet in the table
// (spec.md §4.D).
func (m *Multiplexer) route(ctx context.Context, f protocol.Frame) error {
	m.mu.Lock()
	sess, ok := m.sessions[f.ID]
	if !ok {
		if !f.State.IsSubmit() {
			m.mu.Unlock()
			return errors.Wrapf(sdkerr.ErrUnexpectedReply, "frame %d", f.ID)
		}
		sess = session.New(f.ID, f.PublisherName, session.Config{
			RFD9Compat: m.cfg.RFD9Compat,
			MaxEstSize: m.cfg.MaxEstSize,
			Registry:   m.cfg.Registry,
			Log:        m.log,
		}, m.sendFor(f.ID))
		m.sessions[f.ID] = sess
	}
	m.mu.Unlock()

	handleErr := sess.HandleFrame(ctx, f)

	if sess.Closed() {
		m.mu.Lock()
		delete(m.sessions, f.ID)
		m.mu.Unlock()
	}
	return handleErr
}

// sendFor returns the session.Outbound a Session with the given id uses to
// publish frames onto the shared outbound channel. Sessions run their
// endpoint bodies (and therefore call this) concurrently, so the channel
// itself is the only synchronization needed; no per-session lock is held
// across the send.
func (m *Multiplexer) sendFor(id int32) session.Outbound {
	return func(f protocol.Frame) error {
		m.outbound <- f
		return m.noteClosedIfComplete(id, f.State)
	}
}

// noteClosedIfComplete removes id from the session table once its owning
// Session reports Closed or has just queued its final frame (REPLY_COMPLETE
// or UNSPECIFIED), covering the case where the last outbound frame was
// queued from the session's own goroutine, which route's cleanup never sees.
func (m *Multiplexer) noteClosedIfComplete(id int32, state protocol.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	final := state == protocol.StateReplyComplete || state == protocol.StateUnspecified
	if sess, ok := m.sessions[id]; ok && (final || sess.Closed()) {
		delete(m.sessions, id)
	}
	return nil
}
