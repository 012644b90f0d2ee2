package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

func TestSynthesizer_UnspecifiedStateFails(t *testing.T) {
	s := NewSynthesizer(false)
	_, err := s.Add(protocol.Frame{ID: 1, State: protocol.StateUnspecified})
	assert.ErrorIs(t, err, sdkerr.ErrInvalidState)
}

func TestSynthesizer_ReplyWhileAccumulatingSubmitFailsUnexpectedReply(t *testing.T) {
	s := NewSynthesizer(false)
	_, err := s.Add(protocol.Frame{ID: 1, State: protocol.StateSubmitInProgress, Key: []string{"1"}})
	require.NoError(t, err)

	_, err = s.Add(protocol.Frame{ID: 1, State: protocol.StateReplyComplete})
	assert.ErrorIs(t, err, sdkerr.ErrUnexpectedReply)
}

func TestSynthesizer_SubmitWhileAccumulatingReplyFailsUnexpectedSubmit(t *testing.T) {
	s := NewSynthesizer(false)
	_, err := s.Add(protocol.Frame{ID: 1, State: protocol.StateReplyInProgress, Output: []string{"1"}})
	require.NoError(t, err)

	_, err = s.Add(protocol.Frame{ID: 1, State: protocol.StateSubmitComplete})
	assert.ErrorIs(t, err, sdkerr.ErrUnexpectedSubmit)
}

func TestSynthesizer_MoreAfterCompleteFails(t *testing.T) {
	s := NewSynthesizer(false)
	lq, err := s.Add(protocol.Frame{ID: 9, State: protocol.StateSubmitComplete, Key: []string{`"x"`}})
	require.NoError(t, err)
	require.NotNil(t, lq)

	_, err = s.Add(protocol.Frame{ID: 9, State: protocol.StateSubmitComplete})
	var mac *sdkerr.MoreAfterComplete
	require.ErrorAs(t, err, &mac)
	assert.Equal(t, int32(9), mac.ID)
}

func TestSynthesizer_SplitContinuationJoinsAcrossFrames(t *testing.T) {
	s := NewSynthesizer(false)
	lq, err := s.Add(protocol.Frame{
		ID: 1, State: protocol.StateSubmitInProgress, Key: []string{`"12`}, Split: true,
	})
	require.NoError(t, err)
	require.Nil(t, lq)

	lq, err = s.Add(protocol.Frame{
		ID: 1, State: protocol.StateSubmitComplete, Key: []string{`34"`},
	})
	require.NoError(t, err)
	require.NotNil(t, lq)
	require.Len(t, lq.Key, 1)
	assert.Equal(t, "1234", lq.Key[0])
}

func TestSynthesizer_Rfd9CompatFallsBackToConcatenatedDecode(t *testing.T) {
	s := NewSynthesizer(true)
	// Two entries, neither independently valid JSON, but concatenated form
	// a single valid JSON array: legacy publishers sent one value's JSON
	// text split arbitrarily across key entries instead of per-chunk whole
	// values.
	lq, err := s.Add(protocol.Frame{
		ID:     1,
		State:  protocol.StateSubmitComplete,
		Key:    []string{`["a",`, `"b"]`},
	})
	require.NoError(t, err)
	require.Len(t, lq.Key, 1)
	assert.Equal(t, []interface{}{"a", "b"}, lq.Key[0])
}

func TestSynthesizer_Rfd9CompatFallbackFailurePropagatesPerElementError(t *testing.T) {
	s := NewSynthesizer(true)
	_, err := s.Add(protocol.Frame{
		ID:    1,
		State: protocol.StateSubmitComplete,
		Key:   []string{`not json`, `still not json`},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrInvalidJSONInKey)
}

func TestSynthesizer_OutputDecodeErrorUsesOutputErrorKind(t *testing.T) {
	s := NewSynthesizer(false)
	_, err := s.Add(protocol.Frame{
		ID:     1,
		State:  protocol.StateReplyComplete,
		Output: []string{`not json`},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrInvalidJSONInOutput)
	assert.NotErrorIs(t, err, sdkerr.ErrInvalidJSONInKey)
}

func TestSynthesizer_MultiFrameInProgressAccumulatesInOrder(t *testing.T) {
	s := NewSynthesizer(false)
	lq, err := s.Add(protocol.Frame{ID: 5, State: protocol.StateSubmitInProgress, Concern: []string{"a"}})
	require.NoError(t, err)
	require.Nil(t, lq)

	lq, err = s.Add(protocol.Frame{ID: 5, State: protocol.StateSubmitComplete, Concern: []string{"b"}, Key: []string{`1`}})
	require.NoError(t, err)
	require.NotNil(t, lq)
	assert.Equal(t, []string{"a", "b"}, lq.Concerns)
	assert.Equal(t, []interface{}{float64(1)}, lq.Key)
}
