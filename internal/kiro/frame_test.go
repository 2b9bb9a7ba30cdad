package kiro

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrame(headers, payload []byte) []byte {
	totalLen := preludeSize + len(headers) + len(payload) + 4
	buf := make([]byte, preludeSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(totalLen))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(headers)))
	preludeCRC := crc32.ChecksumIEEE(buf[0:8])
	binary.BigEndian.PutUint32(buf[8:12], preludeCRC)

	body := append(buf, headers...)
	body = append(body, payload...)

	messageCRC := crc32.ChecksumIEEE(body)
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, messageCRC)
	return append(body, out...)
}

func TestFrameDecoder_SingleFrame(t *testing.T) {
	frame := buildFrame([]byte("h"), []byte(`{"content":"hi"}`))

	d := NewFrameDecoder()
	frames, errs := d.Feed(frame)

	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("h"), frames[0].Headers)
	assert.Equal(t, []byte(`{"content":"hi"}`), frames[0].Payload)
}

func TestFrameDecoder_SplitAcrossChunks(t *testing.T) {
	frame := buildFrame([]byte("h"), []byte(`{"content":"hello world"}`))
	mid := len(frame) / 2

	d := NewFrameDecoder()
	frames, errs := d.Feed(frame[:mid])
	assert.Empty(t, frames)
	assert.Empty(t, errs)

	frames, errs = d.Feed(frame[mid:])
	require.Empty(t, errs)
	require.Len(t, frames, 1)
}

func TestFrameDecoder_MultipleFramesOneChunk(t *testing.T) {
	f1 := buildFrame([]byte("a"), []byte(`{"content":"1"}`))
	f2 := buildFrame([]byte("b"), []byte(`{"content":"2"}`))

	d := NewFrameDecoder()
	frames, errs := d.Feed(append(f1, f2...))

	require.Empty(t, errs)
	require.Len(t, frames, 2)
}

func TestFrameDecoder_CorruptCRCDoesNotPoisonDecoder(t *testing.T) {
	good := buildFrame([]byte("a"), []byte(`{"content":"1"}`))
	bad := buildFrame([]byte("b"), []byte(`{"content":"2"}`))
	bad[len(bad)-1] ^= 0xFF // corrupt the trailing message CRC byte

	d := NewFrameDecoder()
	frames, errs := d.Feed(append(bad, good...))

	require.Len(t, errs, 1)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("a"), frames[0].Headers)
}

func TestParseEvent_AssistantResponse(t *testing.T) {
	ev, err := ParseEvent("assistantResponseEvent", []byte(`{"content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, EventAssistantResponse, ev.Kind)
	assert.Equal(t, "hi", ev.Content)
}

func TestParseEvent_ToolUse(t *testing.T) {
	ev, err := ParseEvent("toolUseEvent", []byte(`{"toolUseId":"t1","name":"read","input":"{\"path\"","stop":false}`))
	require.NoError(t, err)
	assert.Equal(t, EventToolUse, ev.Kind)
	assert.Equal(t, "t1", ev.ToolUseID)
	assert.Equal(t, "read", ev.ToolName)
	assert.False(t, ev.ToolStop)
}

func TestParseEvent_Exception(t *testing.T) {
	ev, err := ParseEvent("exception", []byte(`{"type":"ContentLengthExceededException","message":"too long"}`))
	require.NoError(t, err)
	assert.Equal(t, EventException, ev.Kind)
	assert.Equal(t, ContentLengthExceeded, ev.ExceptionType)
}
