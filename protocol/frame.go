// Package protocol defines the wire-level messages exchanged between core
// and a plugin process, and the gRPC service shape that carries them.
//
// The service stubs a protoc-gen-go-grpc run would normally emit are outside
// the scope of this SDK (see spec.md §1); this package supplies handwritten
// equivalents with the same shape so the rest of the module has something
// concrete to depend on. Frame and the four response types travel the wire
// as JSON rather than protobuf (see jsonCodec in codec.go) so that no .proto
// compilation step is required to stand up a working server.
package protocol

// State is the lifecycle state carried on every Frame. See spec.md §3.
type State int32

const (
	// StateUnspecified signals an error condition; it must never appear in
	// a well-formed frame stream.
	StateUnspecified State = iota
	// StateSubmitInProgress marks a non-final frame of a request-direction
	// logical message.
	StateSubmitInProgress
	// StateSubmitComplete marks the final frame of a request-direction
	// logical message.
	StateSubmitComplete
	// StateReplyInProgress marks a non-final frame of a response-direction
	// logical message.
	StateReplyInProgress
	// StateReplyComplete marks the final frame of a response-direction
	// logical message.
	StateReplyComplete
)

func (s State) String() string {
	switch s {
	case StateUnspecified:
		return "UNSPECIFIED"
	case StateSubmitInProgress:
		return "SUBMIT_IN_PROGRESS"
	case StateSubmitComplete:
		return "SUBMIT_COMPLETE"
	case StateReplyInProgress:
		return "REPLY_IN_PROGRESS"
	case StateReplyComplete:
		return "REPLY_COMPLETE"
	default:
		return "UNKNOWN_STATE"
	}
}

// InProgress reports whether s is one of the *_IN_PROGRESS states.
func (s State) InProgress() bool {
	return s == StateSubmitInProgress || s == StateReplyInProgress
}

// IsSubmit reports whether s belongs to the request direction.
func (s State) IsSubmit() bool {
	return s == StateSubmitInProgress || s == StateSubmitComplete
}

// IsReply reports whether s belongs to the response direction.
func (s State) IsReply() bool {
	return s == StateReplyInProgress || s == StateReplyComplete
}

// Frame is a single wire message of the Query streaming RPC. PublisherName,
// PluginName and QueryName are meaningful only on the first frame of a
// logical message; Key, Output, Concern and Split carry each frame's own
// share of the content (spec.md §3).
type Frame struct {
	ID            int32    `json:"id"`
	State         State    `json:"state"`
	PublisherName string   `json:"publisher_name,omitempty"`
	PluginName    string   `json:"plugin_name,omitempty"`
	QueryName     string   `json:"query_name,omitempty"`
	Key           []string `json:"key,omitempty"`
	Output        []string `json:"output,omitempty"`
	Concern       []string `json:"concern,omitempty"`
	Split         bool     `json:"split,omitempty"`
}

// Header returns a copy of f carrying only the fields meaningful on every
// frame (id and the naming triple), with empty repeated fields and the
// given state. Used by the chunk package to seed each produced frame.
func (f Frame) Header(state State) Frame {
	return Frame{
		ID:            f.ID,
		State:         state,
		PublisherName: f.PublisherName,
		PluginName:    f.PluginName,
		QueryName:     f.QueryName,
	}
}

// ByteLen returns the cumulative UTF-8 byte length of Key, Output, and
// Concern, the quantity bounded by EFFECTIVE_MAX (see spec.md §3, §6).
func (f Frame) ByteLen() int {
	var n int
	for _, s := range f.Key {
		n += len(s)
	}
	for _, s := range f.Output {
		n += len(s)
	}
	for _, s := range f.Concern {
		n += len(s)
	}
	return n
}

// EffectiveMax is the default per-frame byte budget: a 4 MiB gRPC message
// less 1 KiB of estimation headroom (spec.md §6).
const EffectiveMax = 4*1024*1024 - 1024
