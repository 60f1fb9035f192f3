package transport

import (
	"testing"

	"github.com/corenetio/corenet/codec"
	"github.com/corenetio/corenet/errs"
	"github.com/corenetio/corenet/ioruntime"
	"github.com/corenetio/corenet/worker"
)

// testRuntime starts a Runtime plus a small worker pool driving its
// completions, and registers cleanup with t.
func testRuntime(t *testing.T) *ioruntime.Runtime {
	t.Helper()
	rt, err := ioruntime.New(ioruntime.Config{Namespace: "corenet_test"})
	if err != nil {
		t.Fatalf("ioruntime.New: %v", err)
	}
	pool := worker.NewPool(4, func() { rt.RunOne() })
	pool.Start()
	t.Cleanup(func() {
		rt.Stop()
		pool.Stop()
	})
	return rt
}

// headerCheckBytesRemaining is a CheckBytesRemaining built directly on
// codec.MessageHeader, the same contract transport.Connection drives
// TCP framing with and MessageCodec.Dispatch validates again on
// receipt.
func headerCheckBytesRemaining(buf []byte) (int, error) {
	if len(buf) < codec.HeaderSize {
		return 0, errs.Wrap(errs.ErrMessageLength, "buffer shorter than header")
	}
	hdr, err := codec.UnmarshalHeader(buf)
	if err != nil {
		return 0, err
	}
	remaining := int(hdr.TotalLength) - len(buf)
	if remaining < 0 {
		return 0, errs.Wrap(errs.ErrMessageLength, "totalLength shorter than received")
	}
	return remaining, nil
}

// buildFrame assembles a complete frame (header + opaque body) without
// going through a Serializer, since these tests exercise the framing
// state machine itself rather than any particular archive kind.
func buildFrame(id uint32, body []byte) []byte {
	h := codec.MessageHeader{
		MessageID:   id,
		ArchiveType: codec.ArchiveRaw,
		TotalLength: uint32(codec.HeaderSize + len(body)),
	}
	frame := h.Marshal()
	return append(frame, body...)
}
