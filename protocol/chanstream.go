package protocol

import "context"

// ChanStream is an in-process QueryServiceQueryServer backed by channels,
// standing in for a real gRPC stream in tests and in the teststub-style
// harness used by package mux's test suite (grounded in the
// teacher's broker/teststub pattern of a channel-driven fake broker).
type ChanStream struct {
	ctx    context.Context
	Inbox  chan *Frame
	Outbox chan *Frame
}

// NewChanStream returns a ChanStream bound to ctx. Close Inbox to
// simulate the client ending the stream (Recv then returns io.EOF-shaped
// ErrStreamClosed).
func NewChanStream(ctx context.Context, buf int) *ChanStream {
	return &ChanStream{
		ctx:    ctx,
		Inbox:  make(chan *Frame, buf),
		Outbox: make(chan *Frame, buf),
	}
}

func (s *ChanStream) Context() context.Context { return s.ctx }

func (s *ChanStream) Send(f *Frame) error {
	select {
	case s.Outbox <- f:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// ErrStreamClosed is returned by Recv once Inbox has been closed and
// drained.
var ErrStreamClosed = errClosed{}

type errClosed struct{}

func (errClosed) Error() string { return "stream closed" }

func (s *ChanStream) Recv() (*Frame, error) {
	select {
	case f, ok := <-s.Inbox:
		if !ok {
			return nil, ErrStreamClosed
		}
		return f, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}
