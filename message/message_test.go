package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_JoinsPartsWithSeparators(t *testing.T) {
	frame := Build(TopicRecord, ActionCreateOrRead, "user/one")
	assert.Equal(t, "R\x1fCR\x1fuser/one\x1e", frame)
}

func TestBuild_NoData(t *testing.T) {
	frame := Build(TopicConnection, ActionAck)
	assert.Equal(t, "C\x1fA\x1e", frame)
}

func TestParse_Roundtrip(t *testing.T) {
	frame := Build(TopicRecord, ActionUpdate, "r1", "2", `{"a":2}`)
	msg, err := Parse(strings.TrimSuffix(frame, MessageSeparator))
	require.NoError(t, err)

	assert.Equal(t, TopicRecord, msg.Topic)
	assert.Equal(t, ActionUpdate, msg.Action)
	assert.Equal(t, []string{"r1", "2", `{"a":2}`}, msg.Data)
}

func TestParse_Malformed(t *testing.T) {
	for _, part := range []string{"", "R", "\x1fCR\x1fname"} {
		_, err := Parse(part)
		assert.Error(t, err, "part %q should not parse", part)
	}
}

func TestParseAll_MultipleFrames(t *testing.T) {
	raw := Build(TopicRecord, ActionAck, "S", "r1") +
		Build(TopicRecord, ActionRead, "r1", "1", `{"a":1}`)

	msgs, err := ParseAll(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, ActionAck, msgs[0].Action)
	assert.Equal(t, ActionRead, msgs[1].Action)
	assert.Equal(t, []string{"r1", "1", `{"a":1}`}, msgs[1].Data)
}

func TestParseAll_SkipsMalformedFrames(t *testing.T) {
	raw := "garbage\x1e" + Build(TopicRecord, ActionAck, "S", "r1")

	msgs, err := ParseAll(raw)
	assert.Error(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1", msgs[0].Data[1])
}

func TestParseAll_Empty(t *testing.T) {
	msgs, err := ParseAll("")
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}
