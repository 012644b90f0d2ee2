package chunk

import (
	"unicode/utf8"

	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

// Chunk splits q into an ordered sequence of Frames, none carrying more
// than maxEstSize cumulative bytes of Key+Output+Concern content, per the
// algorithm in spec.md §4.A. rfd9Compat toggles the legacy placeholder
// fixup (spec.md §4.A step 5, §9).
func Chunk(q LogicalQuery, maxEstSize int, rfd9Compat bool) ([]protocol.Frame, error) {
	proto, err := q.toFrame()
	if err != nil {
		return nil, err
	}
	return chunkFrame(proto, maxEstSize, rfd9Compat)
}

func chunkFrame(proto protocol.Frame, maxEstSize int, rfd9Compat bool) ([]protocol.Frame, error) {
	dir, err := directionOf(proto.State)
	if err != nil {
		return nil, err
	}
	inProgress, complete := dir.inProgressState(), dir.completionState()

	nullKey := len(proto.Key) == 0
	nullOutput := len(proto.Output) == 0

	// Mutable work queues; drained from the front as frames are produced.
	key := append([]string(nil), proto.Key...)
	output := append([]string(nil), proto.Output...)
	concern := append([]string(nil), proto.Concern...)

	var frames []protocol.Frame
	for len(key) > 0 || len(output) > 0 || len(concern) > 0 {
		frame := proto.Header(inProgress)
		remaining := maxEstSize
		madeProgress := false

		for _, src := range []*[]string{&key, &output, &concern} {
			var sink *[]string
			switch src {
			case &key:
				sink = &frame.Key
			case &output:
				sink = &frame.Output
			case &concern:
				sink = &frame.Concern
			}

			progressed, split := drain(src, sink, &remaining)
			madeProgress = madeProgress || progressed
			if split {
				frame.Split = true
				break
			}
			if remaining == 0 {
				break
			}
		}

		if !madeProgress {
			return nil, sdkerr.ErrInvalidState
		}

		if rfd9Compat {
			if len(frame.Key) == 0 {
				frame.Key = append(frame.Key, "")
			}
			if len(frame.Output) == 0 {
				frame.Output = append(frame.Output, "")
			}
		}

		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		// A logical query with entirely empty Key/Output/Concern still
		// produces a single (empty) frame carrying the completion state.
		frames = append(frames, proto.Header(complete))
		if rfd9Compat {
			frames[0].Key = append(frames[0].Key, "")
			frames[0].Output = append(frames[0].Output, "")
		}
	} else {
		frames[len(frames)-1].State = complete
	}

	if rfd9Compat && (nullKey || nullOutput) {
		if nullKey {
			frames[0].Key[0] = "null"
		}
		if nullOutput {
			frames[0].Output[0] = "null"
		}
	}

	return frames, nil
}

// drain pops strings from the front of src into sink until src is
// exhausted, the byte *budget is exhausted, or a string must be split. It
// reports whether any forward progress was made and whether a split
// occurred (spec.md §4.A step 3's drain policy).
func drain(src, sink *[]string, budget *int) (progressed, split bool) {
	for len(*src) > 0 {
		s := (*src)[0]
		drained, remainder, didSplit := drainAtMostNBytes(s, *budget)

		if !didSplit {
			*src = (*src)[1:]
			*sink = append(*sink, drained)
			*budget -= len(drained)
			progressed = true
			continue
		}

		if len(drained) > 0 {
			(*src)[0] = remainder
			*sink = append(*sink, drained)
			*budget -= len(drained)
			return true, true
		}
		// Nothing fit at all; leave src untouched and stop without a split
		// (the caller will move to the next iteration of the outer loop,
		// or detect lack of progress if nothing at all advanced).
		return progressed, false
	}
	return progressed, false
}

// drainAtMostNBytes returns the longest whole-code-point prefix of s whose
// UTF-8 byte length is <= max, and the remaining suffix if s was not
// consumed entirely. didSplit reports whether a suffix remains.
func drainAtMostNBytes(s string, max int) (prefix, suffix string, didSplit bool) {
	if len(s) <= max {
		return s, "", false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], s[cut:], true
}
