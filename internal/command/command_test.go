package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "66a045b452102c59d840ec097d59d9467e13a3f34f6494e539ffd32c1bb35f18"

func TestParseRequestList(t *testing.T) {
	kind, v := ParseRequest(FormatList(42))
	require.Equal(t, KindList, kind)
	assert.Equal(t, ListRequest{Tag: 42}, v)
}

func TestParseRequestMeta(t *testing.T) {
	kind, v := ParseRequest(FormatMeta(testHash))
	require.Equal(t, KindMeta, kind)
	assert.Equal(t, MetaRequest{Hash: testHash}, v)
}

func TestParseRequestGet(t *testing.T) {
	kind, v := ParseRequest(FormatGet(7, 200, testHash))
	require.Equal(t, KindGet, kind)
	assert.Equal(t, GetRequest{Tag: 7, Existing: 200, Hash: testHash}, v)
}

func TestParseRequestGetMeta(t *testing.T) {
	kind, v := ParseRequest(FormatGetMeta(7, 0, 0, testHash))
	require.Equal(t, KindGetMeta, kind)
	assert.Equal(t, GetMetaRequest{Tag: 7, Freq: 0, Existing: 0, Hash: testHash}, v)
}

func TestParseRequestGarbageIsUnknown(t *testing.T) {
	kind, v := ParseRequest("not a command")
	assert.Equal(t, Unknown, kind)
	assert.Nil(t, v)
}

func TestParseRequestWrongHashLengthIsUnknown(t *testing.T) {
	kind, _ := ParseRequest("M deadbeef")
	assert.Equal(t, Unknown, kind)
}

func TestMetaReplyRoundTrip(t *testing.T) {
	reply := MetaReply{Hash: testHash, K: 19, Size: 3684}
	parsed, ok := ParseMetaReply(reply.String(), testHash)
	require.True(t, ok)
	assert.Equal(t, reply, parsed)
}

func TestMetaReplyWrongHashRejected(t *testing.T) {
	reply := MetaReply{Hash: testHash, K: 1, Size: 6}
	_, ok := ParseMetaReply(reply.String(), "0000000000000000000000000000000000000000000000000000000000000000")
	assert.False(t, ok)
}

func TestParseListPayloadEmptySentinel(t *testing.T) {
	entries, sentinelOnly, ok := ParseListPayload(ListSentinel(9), 9)
	require.True(t, ok)
	assert.True(t, sentinelOnly)
	assert.Nil(t, entries)
}

func TestParseListPayloadWithEntries(t *testing.T) {
	payload := ListSentinel(9) + "\n" + ListEntryLine(testHash, "hello.txt")
	entries, sentinelOnly, ok := ParseListPayload(payload, 9)
	require.True(t, ok)
	assert.False(t, sentinelOnly)
	require.Len(t, entries, 1)
	assert.Equal(t, ListEntry{Hash: testHash, Name: "hello.txt"}, entries[0])
}

func TestParseListPayloadWrongTagRejected(t *testing.T) {
	_, _, ok := ParseListPayload(ListSentinel(9), 10)
	assert.False(t, ok)
}
