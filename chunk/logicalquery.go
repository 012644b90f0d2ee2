// Package chunk implements the frame codec: splitting a logical query into
// ordered wire Frames bounded by a byte budget, and reassembling a stream of
// Frames back into a logical query (spec.md §4.A).
package chunk

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Direction of a LogicalQuery: REQUEST flows core -> plugin (initiating) or
// plugin -> core (a nested query); RESPONSE flows the other way.
type Direction int

const (
	Request Direction = iota
	Response
)

// inProgressState and completionState return the wire states a Direction
// chunks into (spec.md §4.A step 1).
func (d Direction) inProgressState() protocol.State {
	if d == Request {
		return protocol.StateSubmitInProgress
	}
	return protocol.StateReplyInProgress
}

func (d Direction) completionState() protocol.State {
	if d == Request {
		return protocol.StateSubmitComplete
	}
	return protocol.StateReplyComplete
}

// directionOf derives a Direction from any SUBMIT_* or REPLY_* state, in
// progress or complete, failing on anything else (spec.md §4.A step 1:
// "UNSPECIFIED input fails with InvalidState").
func directionOf(s protocol.State) (Direction, error) {
	switch s {
	case protocol.StateSubmitInProgress, protocol.StateSubmitComplete:
		return Request, nil
	case protocol.StateReplyInProgress, protocol.StateReplyComplete:
		return Response, nil
	default:
		return 0, sdkerr.ErrInvalidState
	}
}

// LogicalQuery is a fully reassembled (or not-yet-chunked) query message:
// the in-memory representation spec.md §3 describes, with Key and Output
// holding decoded JSON values rather than their wire-level string encodings.
type LogicalQuery struct {
	ID        int32
	Direction Direction
	Publisher string
	Plugin    string
	Query     string
	Key       []interface{}
	Output    []interface{}
	Concerns  []string
}

// encodeValues JSON-encodes each element of vs independently, the inverse of
// decodeValues. errKind is returned (wrapped with the failing index) on the
// first encode failure.
func encodeValues(vs []interface{}, errKind error) ([]string, error) {
	out := make([]string, len(vs))
	for i, v := range vs {
		b, err := jsonAPI.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(errKind, "encoding element %d: %s", i, err)
		}
		out[i] = string(b)
	}
	return out, nil
}

// toFrame builds the unchunked prototype Frame carrying q's header fields
// and JSON-encoded Key/Output/Concern content (spec.md §4.A: "a LogicalQuery
// encoded to a single prototype frame").
func (q LogicalQuery) toFrame() (protocol.Frame, error) {
	key, err := encodeValues(q.Key, sdkerr.ErrInvalidJSONInKey)
	if err != nil {
		return protocol.Frame{}, err
	}
	output, err := encodeValues(q.Output, sdkerr.ErrInvalidJSONInOutput)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.Frame{
		ID:            q.ID,
		State:         q.Direction.completionState(),
		PublisherName: q.Publisher,
		PluginName:    q.Plugin,
		QueryName:     q.Query,
		Key:           key,
		Output:        output,
		Concern:       append([]string(nil), q.Concerns...),
		Split:         false,
	}, nil
}
