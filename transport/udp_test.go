package transport

import (
	"net"
	"testing"
	"time"

	"github.com/corenetio/corenet/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// udpCheckExactlyOne is a CheckBytesRemaining that accepts any
// nonempty datagram as a single complete message, matching spec
// section 4.L's "UDP preserves datagram boundaries" contract.
func udpCheckExactlyOne(buf []byte) (int, error) {
	return 0, nil
}

func TestUDPUnicastRoundTrips(t *testing.T) {
	rt := testRuntime(t)

	received := make(chan []byte, 1)
	receiver, err := NewUDPEndpoint(UDPConfig{
		Runtime:             rt,
		ReceivePort:         0, // OS-assigned; Addr() resolved below
		CheckBytesRemaining: udpCheckExactlyOne,
		MessageReceived: func(b []byte) {
			received <- append([]byte(nil), b...)
		},
	})
	require.NoError(t, err)
	defer receiver.Close()

	port := receiver.recvConn.LocalAddr().(*net.UDPAddr).Port

	sender, err := NewUDPEndpoint(UDPConfig{Runtime: rt})
	require.NoError(t, err)
	defer sender.Close()

	payload := buildFrame(7, []byte("udp hello"))
	ok, err := sender.SendSync(Endpoint{Host: "127.0.0.1", Port: uint16(port)}, payload)
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case got := <-received:
		assert.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("udp datagram never arrived")
	}
}

func TestUDPSendRejectsOversizedDatagram(t *testing.T) {
	rt := testRuntime(t)
	sender, err := NewUDPEndpoint(UDPConfig{Runtime: rt})
	require.NoError(t, err)
	defer sender.Close()

	oversized := make([]byte, MaxDatagramBody+1)
	_, err = sender.SendSync(Endpoint{Host: "127.0.0.1", Port: 9}, oversized)
	assert.Error(t, err)
}

func TestUDPAsyncSendDeliversInOrder(t *testing.T) {
	rt := testRuntime(t)

	received := make(chan []byte, 8)
	receiver, err := NewUDPEndpoint(UDPConfig{
		Runtime:             rt,
		ReceivePort:         0,
		CheckBytesRemaining: udpCheckExactlyOne,
		MessageReceived: func(b []byte) {
			received <- append([]byte(nil), b...)
		},
	})
	require.NoError(t, err)
	defer receiver.Close()
	port := receiver.recvConn.LocalAddr().(*net.UDPAddr).Port

	sender, err := NewUDPEndpoint(UDPConfig{Runtime: rt})
	require.NoError(t, err)
	defer sender.Close()

	addr := Endpoint{Host: "127.0.0.1", Port: uint16(port)}
	for i := 0; i < 5; i++ {
		require.NoError(t, sender.SendAsync(addr, buildFrame(uint32(i), nil)))
	}

	for i := 0; i < 5; i++ {
		select {
		case got := <-received:
			hdr, err := codec.UnmarshalHeader(got)
			require.NoError(t, err)
			assert.Equal(t, uint32(i), hdr.MessageID)
		case <-time.After(2 * time.Second):
			t.Fatalf("datagram %d never arrived", i)
		}
	}
}
