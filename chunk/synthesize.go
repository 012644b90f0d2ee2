package chunk

import (
	"github.com/pkg/errors"

	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

// lastField names which of a Frame's three repeated fields most recently
// held content, used to know which list a split continuation belongs to
// (spec.md §4.A "last-field-with-content").
type lastField int

const (
	fieldKey lastField = iota
	fieldOutput
	fieldConcern
)

// lastFieldToHaveContent returns the last-field-with-content of f. Under
// rfd9Compat, Output counts as non-empty only when its single entry isn't
// the placeholder "" or "null" (spec.md §4.A).
func lastFieldToHaveContent(f protocol.Frame, rfd9Compat bool) lastField {
	if len(f.Concern) > 0 {
		return fieldConcern
	}
	if rfd9Compat {
		if !(len(f.Output) == 1 && (f.Output[0] == "" || f.Output[0] == "null")) {
			return fieldOutput
		}
	} else if len(f.Output) > 0 {
		return fieldOutput
	}
	return fieldKey
}

// Synthesizer accumulates a stream of Frames into a LogicalQuery (spec.md
// §4.A "Reassembly"). Zero value is ready to use.
type Synthesizer struct {
	rfd9Compat bool

	raw          *protocol.Frame
	initialState protocol.State
	direction    Direction
	done         bool
	lastSplit    *lastField // non-nil iff the most recently captured frame had Split = true
}

// NewSynthesizer returns a Synthesizer honoring the given rfd9_compat
// setting.
func NewSynthesizer(rfd9Compat bool) *Synthesizer {
	return &Synthesizer{rfd9Compat: rfd9Compat}
}

// Add feeds the next frame of the stream. It returns (nil, nil) while more
// frames are required, the reassembled LogicalQuery once the *_COMPLETE
// frame has been consumed, or an error for any of the conditions in
// spec.md §4.A / §7.
func (s *Synthesizer) Add(f protocol.Frame) (*LogicalQuery, error) {
	if s.done {
		id := int32(0)
		if s.raw != nil {
			id = s.raw.ID
		}
		return nil, &sdkerr.MoreAfterComplete{ID: id}
	}

	if f.State == protocol.StateUnspecified {
		return nil, sdkerr.ErrInvalidState
	}

	if s.raw == nil {
		dir, err := directionOf(f.State)
		if err != nil {
			return nil, err
		}
		s.direction = dir
		s.initialState = f.State
		fc := f
		s.raw = &fc
		if f.Split {
			lf := lastFieldToHaveContent(f, s.rfd9Compat)
			s.lastSplit = &lf
		}

		if !f.State.InProgress() {
			s.done = true
			return s.finish()
		}
		return nil, nil
	}

	// s.raw != nil: this is a continuation frame.
	wantDir := s.direction
	gotDir, err := directionOf(f.State)
	if err != nil {
		return nil, err
	}
	if gotDir != wantDir {
		if wantDir == Request {
			return nil, sdkerr.ErrUnexpectedReply
		}
		return nil, sdkerr.ErrUnexpectedSubmit
	}

	s.raw.State = f.State

	var nextSplitPtr *lastField
	if f.Split {
		lf := lastFieldToHaveContent(f, s.rfd9Compat)
		nextSplitPtr = &lf
	}

	fKey, fOutput, fConcern := f.Key, f.Output, f.Concern
	if s.lastSplit != nil {
		switch *s.lastSplit {
		case fieldKey:
			if len(fKey) > 0 && len(s.raw.Key) > 0 {
				s.raw.Key[len(s.raw.Key)-1] += fKey[0]
				fKey = fKey[1:]
			}
		case fieldOutput:
			if len(fOutput) > 0 && len(s.raw.Output) > 0 {
				s.raw.Output[len(s.raw.Output)-1] += fOutput[0]
				fOutput = fOutput[1:]
			}
		case fieldConcern:
			if len(fConcern) > 0 && len(s.raw.Concern) > 0 {
				s.raw.Concern[len(s.raw.Concern)-1] += fConcern[0]
				fConcern = fConcern[1:]
			}
		}
	}

	s.raw.Key = append(s.raw.Key, fKey...)
	s.raw.Output = append(s.raw.Output, fOutput...)
	s.raw.Concern = append(s.raw.Concern, fConcern...)

	s.lastSplit = nextSplitPtr

	if !f.State.InProgress() {
		s.done = true
		return s.finish()
	}
	return nil, nil
}

// finish decodes s.raw's Key and Output string entries into a LogicalQuery,
// applying the rfd9_compat concatenated-value fallback on per-element
// decode failure (spec.md §4.A, §9).
func (s *Synthesizer) finish() (*LogicalQuery, error) {
	key, err := decodeValues(s.raw.Key, sdkerr.ErrInvalidJSONInKey, s.rfd9Compat)
	if err != nil {
		return nil, err
	}
	output, err := decodeValues(s.raw.Output, sdkerr.ErrInvalidJSONInOutput, s.rfd9Compat)
	if err != nil {
		return nil, err
	}

	return &LogicalQuery{
		ID:        s.raw.ID,
		Direction: s.direction,
		Publisher: s.raw.PublisherName,
		Plugin:    s.raw.PluginName,
		Query:     s.raw.QueryName,
		Key:       key,
		Output:    output,
		Concerns:  append([]string(nil), s.raw.Concern...),
	}, nil
}

// decodeValues decodes each element of raw as an independent JSON value. If
// any element fails and rfd9Compat is set, it falls back to concatenating
// every element and decoding a single JSON value, per spec.md §4.A / §9
// ("the per-element error is the one propagated" if the fallback also
// fails).
func decodeValues(raw []string, errKind error, rfd9Compat bool) ([]interface{}, error) {
	vals, perElementErr := decodePerElement(raw, errKind)
	if perElementErr == nil {
		return vals, nil
	}
	if !rfd9Compat {
		return nil, perElementErr
	}

	var concatenated string
	for _, s := range raw {
		concatenated += s
	}
	var v interface{}
	if err := jsonAPI.UnmarshalFromString(concatenated, &v); err != nil {
		return nil, perElementErr
	}
	return []interface{}{v}, nil
}

func decodePerElement(raw []string, errKind error) ([]interface{}, error) {
	out := make([]interface{}, len(raw))
	for i, s := range raw {
		var v interface{}
		if err := jsonAPI.UnmarshalFromString(s, &v); err != nil {
			return nil, errors.Wrapf(errKind, "element %d: %s", i, err)
		}
		out[i] = v
	}
	return out, nil
}
