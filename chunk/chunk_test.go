package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitre/hipcheck/protocol"
	"github.com/mitre/hipcheck/sdkerr"
)

func roundTrip(t *testing.T, q LogicalQuery, maxEstSize int, rfd9Compat bool) *LogicalQuery {
	t.Helper()
	frames, err := Chunk(q, maxEstSize, rfd9Compat)
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	synth := NewSynthesizer(rfd9Compat)
	var out *LogicalQuery
	for i, f := range frames {
		lq, err := synth.Add(f)
		require.NoError(t, err)
		if i < len(frames)-1 {
			assert.Nil(t, lq, "frame %d should not complete synthesis early", i)
		} else {
			require.NotNil(t, lq, "final frame should complete synthesis")
			out = lq
		}
	}
	return out
}

func TestChunkRoundTrip_SmallMessageSingleFrame(t *testing.T) {
	q := LogicalQuery{
		ID:        7,
		Direction: Request,
		Publisher: "core",
		Plugin:    "affiliation",
		Query:     "affiliation",
		Key:       []interface{}{"octocat/hello-world"},
	}

	frames, err := Chunk(q, protocol.EffectiveMax, false)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.StateSubmitComplete, frames[0].State)
	assert.False(t, frames[0].Split)

	out := roundTrip(t, q, protocol.EffectiveMax, false)
	assert.Equal(t, q.ID, out.ID)
	assert.Equal(t, q.Plugin, out.Plugin)
	assert.Equal(t, q.Key, out.Key)
}

func TestChunkRoundTrip_MultipleFramesUnderByteBudget(t *testing.T) {
	q := LogicalQuery{
		ID:        42,
		Direction: Response,
		Publisher: "core",
		Plugin:    "activity",
		Query:     "activity",
		Output:    []interface{}{map[string]interface{}{"score": 0.5}},
		Concerns:  []string{"stale repository", "no recent commits", "low contributor count"},
	}

	frames, err := Chunk(q, 24, false)
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)

	for i, f := range frames {
		assert.LessOrEqual(t, f.ByteLen(), 24)
		if i < len(frames)-1 {
			assert.Equal(t, protocol.StateReplyInProgress, f.State)
		}
	}
	assert.Equal(t, protocol.StateReplyComplete, frames[len(frames)-1].State)

	out := roundTrip(t, q, 24, false)
	assert.Equal(t, q.Concerns, out.Concerns)
	assert.Equal(t, q.Output, out.Output)
}

func TestChunkRoundTrip_Rfd9CompatEmptyListPlaceholders(t *testing.T) {
	q := LogicalQuery{
		ID:        3,
		Direction: Request,
		Publisher: "core",
		Plugin:    "review",
		Query:     "review",
		Key:       nil,
	}

	frames, err := Chunk(q, protocol.EffectiveMax, true)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Len(t, frames[0].Key, 1)
	assert.Equal(t, "null", frames[0].Key[0])
}

func TestChunkRoundTrip_EmptyLogicalQueryStillProducesOneFrame(t *testing.T) {
	q := LogicalQuery{ID: 1, Direction: Request, Plugin: "noop", Query: "noop"}

	frames, err := Chunk(q, protocol.EffectiveMax, false)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.StateSubmitComplete, frames[0].State)
}

func TestDrainAtMostNBytes_SplitsOnRuneBoundary(t *testing.T) {
	prefix, suffix, didSplit := drainAtMostNBytes("1234", 3)
	assert.True(t, didSplit)
	assert.Equal(t, "123", prefix)
	assert.Equal(t, "4", suffix)
}

func TestDrainAtMostNBytes_NeverSplitsMidCodepoint(t *testing.T) {
	// "é" is the two-byte UTF-8 sequence 0xC3 0xA9.
	s := "aé"
	prefix, suffix, didSplit := drainAtMostNBytes(s, 2)
	assert.True(t, didSplit)
	assert.Equal(t, "a", prefix)
	assert.Equal(t, "é", suffix)
}

func TestDrainAtMostNBytes_FitsWithoutSplit(t *testing.T) {
	prefix, suffix, didSplit := drainAtMostNBytes("abc", 10)
	assert.False(t, didSplit)
	assert.Equal(t, "abc", prefix)
	assert.Empty(t, suffix)
}

func TestChunk_StuckLoopFailsInvalidState(t *testing.T) {
	q := LogicalQuery{ID: 1, Direction: Request, Key: []interface{}{"x"}}
	_, err := Chunk(q, 0, false)
	assert.ErrorIs(t, err, sdkerr.ErrInvalidState)
}
