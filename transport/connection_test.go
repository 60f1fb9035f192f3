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

// acceptOneConnection starts a listener, accepts exactly one peer, and
// wraps it as a transport.Connection driven by cfg.Runtime.
func acceptOneConnection(t *testing.T, cfg ConnectionConfig) (net.Listener, *Connection, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			acceptedCh <- c
		}
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	var serverSide net.Conn
	select {
	case serverSide = <-acceptedCh:
	case <-time.After(time.Second):
		t.Fatal("accept timed out")
	}

	conn, err := newConnection(serverSide, cfg)
	require.NoError(t, err)
	conn.Start()

	return ln, conn, clientConn
}

func TestFramingDeliversConcatenatedFramesUnderArbitraryChunking(t *testing.T) {
	rt := testRuntime(t)

	var mu sync.Mutex
	var received [][]byte

	cfg := ConnectionConfig{
		Runtime:             rt,
		MinAmountToRead:     codec.HeaderSize,
		CheckBytesRemaining: headerCheckBytesRemaining,
		MessageReceived: func(frame []byte) {
			cp := append([]byte(nil), frame...)
			mu.Lock()
			received = append(received, cp)
			mu.Unlock()
		},
	}
	ln, conn, client := acceptOneConnection(t, cfg)
	defer ln.Close()
	defer conn.Close()
	defer client.Close()

	frame1 := buildFrame(1, []byte("hello"))
	frame2 := buildFrame(2, []byte("a slightly longer body here"))
	frame3 := buildFrame(3, nil)
	all := append(append(append([]byte{}, frame1...), frame2...), frame3...)

	// Write one byte at a time to exercise arbitrary chunking (spec
	// testable property 3).
	go func() {
		for _, b := range all {
			client.Write([]byte{b})
			time.Sleep(time.Microsecond)
		}
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, frame1, received[0])
	assert.Equal(t, frame2, received[1])
	assert.Equal(t, frame3, received[2])
}

func TestFramingSurvivesMalformedFrameAndResumes(t *testing.T) {
	rt := testRuntime(t)

	var mu sync.Mutex
	var received [][]byte
	cfg := ConnectionConfig{
		Runtime:             rt,
		MinAmountToRead:     codec.HeaderSize,
		CheckBytesRemaining: headerCheckBytesRemaining,
		MessageReceived: func(frame []byte) {
			cp := append([]byte(nil), frame...)
			mu.Lock()
			received = append(received, cp)
			mu.Unlock()
		},
	}
	ln, conn, client := acceptOneConnection(t, cfg)
	defer ln.Close()
	defer conn.Close()
	defer client.Close()

	bad := codec.MessageHeader{MessageID: 99, TotalLength: 1}.Marshal() // TotalLength < HeaderSize: malformed
	good := buildFrame(5, []byte("ok"))

	client.Write(bad)
	client.Write(good)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, good, received[0])
}

func TestConnectionCloseIsIdempotentAndSafeFromCompletionHandler(t *testing.T) {
	rt := testRuntime(t)

	cfg := ConnectionConfig{
		Runtime:             rt,
		MinAmountToRead:     codec.HeaderSize,
		CheckBytesRemaining: headerCheckBytesRemaining,
		MessageReceived:     func([]byte) {},
	}
	ln, conn, client := acceptOneConnection(t, cfg)
	defer ln.Close()
	defer client.Close()

	// Run both closes inside a task on a runtime worker, the same
	// context completion handlers run in.
	done := make(chan struct{})
	rt.Post(func() {
		conn.Close()
		conn.Close() // must complete, not deadlock
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("double Close deadlocked")
	}
	assert.Equal(t, StateClosed.String(), waitForClosed(t, conn).String())
}

func waitForClosed(t *testing.T, conn *Connection) State {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if conn.State() == StateClosed {
			return StateClosed
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn.State()
}

func TestConnectionSendSyncDeliversBytes(t *testing.T) {
	rt := testRuntime(t)

	received := make(chan []byte, 1)
	cfg := ConnectionConfig{
		Runtime:             rt,
		MinAmountToRead:     codec.HeaderSize,
		CheckBytesRemaining: headerCheckBytesRemaining,
		MessageReceived: func(frame []byte) {
			cp := append([]byte(nil), frame...)
			received <- cp
		},
	}
	ln, conn, client := acceptOneConnection(t, cfg)
	defer ln.Close()
	defer conn.Close()
	defer client.Close()

	frame := buildFrame(42, []byte("sync"))
	ok := conn.SendSync(frame)
	assert.True(t, ok)

	buf := make([]byte, len(frame))
	_, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, frame, buf)
}
