package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/corenetio/corenet/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClientReconnectsAfterPeerDrop exercises spec testable property 12:
// a client whose peer connection has been torn down reconnects on the
// next send and the message still arrives.
func TestClientReconnectsAfterPeerDrop(t *testing.T) {
	rt := testRuntime(t)

	received := make(chan []byte, 4)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := ConnectionConfig{
		Runtime:             rt,
		MinAmountToRead:     codec.HeaderSize,
		CheckBytesRemaining: headerCheckBytesRemaining,
		MessageReceived: func(frame []byte) {
			received <- append([]byte(nil), frame...)
		},
	}

	var mu sync.Mutex
	var serverConns []*Connection
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conn, err := newConnection(c, cfg)
			if err != nil {
				c.Close()
				continue
			}
			mu.Lock()
			serverConns = append(serverConns, conn)
			mu.Unlock()
			conn.Start()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	peer := Endpoint{Host: addr.IP.String(), Port: uint16(addr.Port)}

	client := NewClient(ClientConfig{
		Runtime:             rt,
		PeerEndpoint:        peer,
		MinAmountToRead:     codec.HeaderSize,
		CheckBytesRemaining: headerCheckBytesRemaining,
		MessageReceived:     func([]byte) {},
		ConnectTimeout:      2 * time.Second,
	})
	defer client.Close()

	require.Eventually(t, func() bool { return !client.Registry().Empty() }, 2*time.Second, 10*time.Millisecond)

	frame1 := buildFrame(1, []byte("first"))
	client.SendAsync(frame1)
	select {
	case got := <-received:
		assert.Equal(t, frame1, got)
	case <-time.After(2 * time.Second):
		t.Fatal("first send never arrived")
	}

	// Sever the server-side connection under the client's feet.
	mu.Lock()
	for _, c := range serverConns {
		c.Close()
	}
	mu.Unlock()

	require.Eventually(t, func() bool { return client.Registry().Empty() }, 2*time.Second, 10*time.Millisecond)

	frame2 := buildFrame(2, []byte("second"))
	client.SendSync(frame2)

	select {
	case got := <-received:
		assert.Equal(t, frame2, got)
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect-and-resend never arrived")
	}
}
