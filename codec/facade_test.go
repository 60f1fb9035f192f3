package codec

import (
	"sync"
	"testing"
	"time"

	"github.com/corenetio/corenet/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleMessage struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

func TestFacadeBuildThenSplitRoundTrips(t *testing.T) {
	f := NewFacade("", nil)
	defer f.Close()

	msg := sampleMessage{Name: "MyMessage", Data: []float64{1, 2, 3, 4, 5}}
	frame, err := f.Build(msg, ArchivePortableBinary, 666, NullEndpoint)
	require.NoError(t, err)

	hdr, err := UnmarshalHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(frame)), hdr.TotalLength)
	assert.Equal(t, uint32(666), hdr.MessageID)
	assert.Equal(t, DefaultMagic, hdr.MagicString())
	assert.Equal(t, ArchivePortableBinary, hdr.ArchiveType)

	var out sampleMessage
	require.NoError(t, f.Decode(ReceivedMessage{Header: hdr, Body: frame[HeaderSize:]}, &out))
	assert.Equal(t, msg, out)
}

func TestFacadeDispatchRoutesByMessageID(t *testing.T) {
	f := NewFacade("", nil)
	defer f.Close()

	var mu sync.Mutex
	var received []sampleMessage

	require.NoError(t, f.RegisterHandler(7, func(rm ReceivedMessage) bool {
		var m sampleMessage
		if err := f.Decode(rm, &m); err == nil {
			mu.Lock()
			received = append(received, m)
			mu.Unlock()
		}
		return true
	}))

	msg := sampleMessage{Name: "ping", Data: []float64{1}}
	frame, err := f.Build(msg, ArchiveText, 7, NullEndpoint)
	require.NoError(t, err)
	require.NoError(t, f.Dispatch(frame))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, msg, received[0])
}

func TestFacadeDispatchRejectsShortFrame(t *testing.T) {
	f := NewFacade("", nil)
	defer f.Close()
	err := f.Dispatch([]byte{1, 2, 3})
	assert.ErrorIs(t, err, errs.ErrMessageLength)
}

func TestFacadeDispatchRejectsBadMagic(t *testing.T) {
	f := NewFacade("_OTHER_MAGIC_", nil)
	defer f.Close()

	other := NewFacade("_BEGIN_MESSAGE_", nil)
	defer other.Close()
	frame, err := other.Build(sampleMessage{}, ArchiveText, 1, NullEndpoint)
	require.NoError(t, err)

	err = f.Dispatch(frame)
	assert.ErrorIs(t, err, errs.ErrMagicMismatch)
}

func TestFacadeBuildRejectsNonPODRaw(t *testing.T) {
	f := NewFacade("", nil)
	defer f.Close()
	_, err := f.Build(sampleMessage{Name: "x"}, ArchiveRaw, 1, NullEndpoint)
	assert.ErrorIs(t, err, errs.ErrArchiveType)
}

func TestFacadeBuildRawRoundTripsPOD(t *testing.T) {
	f := NewFacade("", nil)
	defer f.Close()

	type point struct {
		X, Y int32
	}
	p := point{X: 3, Y: -4}
	frame, err := f.Build(p, ArchiveRaw, 1, NullEndpoint)
	require.NoError(t, err)

	hdr, err := UnmarshalHeader(frame)
	require.NoError(t, err)

	var out point
	require.NoError(t, f.Decode(ReceivedMessage{Header: hdr, Body: frame[HeaderSize:]}, &out))
	assert.Equal(t, p, out)
}
