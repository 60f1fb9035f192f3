package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSizeIs43Bytes(t *testing.T) {
	h := MessageHeader{Magic: fixedField(DefaultMagic), ResponseAddress: fixedField("127.0.0.1")}
	assert.Len(t, h.Marshal(), 43)
	assert.Equal(t, 43, HeaderSize)
}

func TestHeaderFieldsAreNULTerminated(t *testing.T) {
	long := "this string is definitely longer than sixteen bytes"
	h := MessageHeader{Magic: fixedField(long), ResponseAddress: fixedField(long)}
	buf := h.Marshal()
	assert.Zero(t, buf[15])
	assert.Zero(t, buf[31])
}

func TestHeaderMarshalUnmarshalRoundTrips(t *testing.T) {
	h := MessageHeader{
		Magic:           fixedField(DefaultMagic),
		ResponseAddress: fixedField("127.0.0.1"),
		ResponsePort:    22222,
		MessageID:       666,
		ArchiveType:     ArchiveXML,
		TotalLength:     HeaderSize + 10,
	}
	buf := h.Marshal()
	got, err := UnmarshalHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, DefaultMagic, got.MagicString())
	assert.Equal(t, "127.0.0.1", got.ResponseAddressString())
}

func TestUnmarshalHeaderRejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalHeader(make([]byte, 10))
	assert.Error(t, err)
}

func TestArchiveValid(t *testing.T) {
	assert.True(t, ArchiveRaw.Valid())
	assert.False(t, Archive(5).Valid())
}
