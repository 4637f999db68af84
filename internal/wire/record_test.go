package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendString(b []byte, field protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, field protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloat(b []byte, field protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, field, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func Test_DecodeRoundTripsBasicFields(t *testing.T) {
	var b []byte
	b = appendString(b, fieldHostname, "web-1")
	b = appendString(b, fieldServerName, "api")
	b = appendString(b, fieldScriptName, "index.php")
	b = appendString(b, fieldSchema, "http")
	b = appendVarint(b, fieldStatus, 200)
	b = appendFloat(b, fieldRequestTime, 0.125)
	b = appendVarint(b, fieldDocumentSize, 4096)

	var r Record
	require.NoError(t, Decode(b, &r))

	assert.Equal(t, "web-1", r.Hostname)
	assert.Equal(t, "api", r.ServerName)
	assert.Equal(t, "index.php", r.ScriptName)
	assert.Equal(t, "http", r.Schema)
	assert.Equal(t, uint32(200), r.Status)
	assert.InDelta(t, 0.125, r.RequestTime, 1e-6)
	assert.Equal(t, uint64(4096), r.DocumentSize)
}

func Test_DecodeDictionaryAndTags(t *testing.T) {
	var b []byte
	b = appendString(b, fieldDictionary, "group")
	b = appendString(b, fieldDictionary, "checkout")
	b = appendVarint(b, fieldTagName, 0)
	b = appendVarint(b, fieldTagValue, 1)

	var r Record
	require.NoError(t, Decode(b, &r))

	require.Len(t, r.Dictionary, 2)
	assert.Equal(t, "group", r.Word(r.TagName[0]))
	assert.Equal(t, "checkout", r.Word(r.TagValue[0]))
}

func Test_DecodeTimersWithTagCounts(t *testing.T) {
	var b []byte
	b = appendString(b, fieldDictionary, "sql")
	b = appendString(b, fieldDictionary, "select")
	b = appendVarint(b, fieldTimerHitCount, 3)
	b = appendFloat(b, fieldTimerValue, 0.01)
	b = appendVarint(b, fieldTimerTagCount, 1)
	b = appendVarint(b, fieldTimerTagName, 0)
	b = appendVarint(b, fieldTimerTagValue, 1)

	var r Record
	require.NoError(t, Decode(b, &r))

	require.Len(t, r.TimerHitCount, 1)
	assert.EqualValues(t, 3, r.TimerHitCount[0])
	require.Len(t, r.TimerValue, 1)
	assert.InDelta(t, 0.01, r.TimerValue[0], 1e-6)
	require.Len(t, r.TimerTagCount, 1)
	assert.EqualValues(t, 1, r.TimerTagCount[0])
}

func Test_WordOutOfRangeReturnsEmpty(t *testing.T) {
	var r Record
	assert.Equal(t, "", r.Word(7))
}

func Test_ResetClearsAllFields(t *testing.T) {
	var b []byte
	b = appendString(b, fieldHostname, "web-1")
	b = appendVarint(b, fieldTagName, 0)

	var r Record
	require.NoError(t, Decode(b, &r))
	r.Reset()

	assert.Equal(t, "", r.Hostname)
	assert.Empty(t, r.TagName)
}

func Test_UnknownFieldsAreIgnored(t *testing.T) {
	var b []byte
	b = appendVarint(b, 99, 42)
	b = appendString(b, fieldHostname, "web-1")

	var r Record
	require.NoError(t, Decode(b, &r))
	assert.Equal(t, "web-1", r.Hostname)
}
