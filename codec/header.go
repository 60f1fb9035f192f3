// Package codec implements the wire header, the archive-kind
// serialization seam, and the envelope-build/dispatch façade
// described in spec sections 3, 4.M and 6.
package codec

import (
	"encoding/binary"

	"github.com/corenetio/corenet/errs"
)

// HeaderSize is the fixed, packed size of MessageHeader on the wire:
// 16 (magic) + 16 (responseAddress) + 2 (responsePort) + 4 (messageId)
// + 1 (archiveType) + 4 (totalLength) = 43 bytes.
const HeaderSize = 43

// DefaultMagic is the magic string used when a façade is not given an
// explicit one.
const DefaultMagic = "_BEGIN_MESSAGE_"

// addrFieldSize is the fixed width of the magic and responseAddress
// fields.
const addrFieldSize = 16

// Archive names the wire encoding used for a frame's body.
type Archive uint8

const (
	ArchivePortableBinary Archive = 0
	ArchiveText           Archive = 1
	ArchiveBinary         Archive = 2
	ArchiveXML            Archive = 3
	ArchiveRaw            Archive = 4
)

func (a Archive) Valid() bool {
	return a <= ArchiveRaw
}

// MessageHeader is the wire-exact, packed frame header. All multi-byte
// fields are little-endian on the wire regardless of host architecture
// (see SPEC_FULL.md section 6's resolution of the "host native order"
// open question).
type MessageHeader struct {
	Magic           [addrFieldSize]byte
	ResponseAddress [addrFieldSize]byte
	ResponsePort    uint16
	MessageID       uint32
	ArchiveType     Archive
	TotalLength     uint32
}

// fixedField copies s into a NUL-padded, NUL-terminated fixed-size
// array, truncating if necessary, per spec section 3's invariant that
// both address fields are always NUL-terminated within their 16 bytes.
func fixedField(s string) [addrFieldSize]byte {
	var out [addrFieldSize]byte
	n := copy(out[:addrFieldSize-1], s)
	out[n] = 0
	return out
}

func fieldString(b [addrFieldSize]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// Marshal writes the header in wire order into a new HeaderSize-byte
// slice.
func (h MessageHeader) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:16], h.Magic[:])
	copy(buf[16:32], h.ResponseAddress[:])
	binary.LittleEndian.PutUint16(buf[32:34], h.ResponsePort)
	binary.LittleEndian.PutUint32(buf[34:38], h.MessageID)
	buf[38] = byte(h.ArchiveType)
	binary.LittleEndian.PutUint32(buf[39:43], h.TotalLength)
	return buf
}

// UnmarshalHeader reads a MessageHeader from the front of buf. buf
// must be at least HeaderSize bytes.
func UnmarshalHeader(buf []byte) (MessageHeader, error) {
	var h MessageHeader
	if len(buf) < HeaderSize {
		return h, errs.Wrap(errs.ErrMessageLength, "frame shorter than header")
	}
	copy(h.Magic[:], buf[0:16])
	copy(h.ResponseAddress[:], buf[16:32])
	h.ResponsePort = binary.LittleEndian.Uint16(buf[32:34])
	h.MessageID = binary.LittleEndian.Uint32(buf[34:38])
	h.ArchiveType = Archive(buf[38])
	h.TotalLength = binary.LittleEndian.Uint32(buf[39:43])
	return h, nil
}

// MagicString returns the NUL-terminated magic field as a string.
func (h MessageHeader) MagicString() string { return fieldString(h.Magic) }

// ResponseAddressString returns the NUL-terminated response address
// field as a string.
func (h MessageHeader) ResponseAddressString() string { return fieldString(h.ResponseAddress) }
