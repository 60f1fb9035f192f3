package codec

import (
	"github.com/corenetio/corenet/errs"
	"github.com/corenetio/corenet/mqueue"
	"github.com/sirupsen/logrus"
)

// Endpoint is the (host, port) pair used throughout corenet to name a
// remote, independent of the transport package so that codec has no
// import-cycle back onto transport.
type Endpoint struct {
	Host string
	Port uint16
}

// NullEndpoint is the distinguished "no explicit address" value.
var NullEndpoint = Endpoint{Host: "0.0.0.0", Port: 0}

// ReceivedMessage is what Dispatch hands to the caller-supplied
// dispatch function: the parsed header plus the body slice.
type ReceivedMessage struct {
	Header MessageHeader
	Body   []byte
}

// Facade implements spec section 4.M: Build constructs a framed
// envelope around a user object, Dispatch validates and unpacks a
// received frame and routes it through a mqueue.Thread so user code
// never runs on an I/O goroutine.
type Facade struct {
	Magic      string
	Serializer Serializer
	Dispatcher *mqueue.Thread
	Log        *logrus.Logger
}

// NewFacade constructs a Facade with sane defaults: DefaultMagic,
// DefaultSerializer, and a dedicated mqueue.Thread decoding by
// MessageID.
func NewFacade(magic string, log *logrus.Logger) *Facade {
	if magic == "" {
		magic = DefaultMagic
	}
	f := &Facade{
		Magic:      magic,
		Serializer: DefaultSerializer{},
		Log:        log,
	}
	f.Dispatcher = mqueue.New(f.decodeID, mqueue.DiscardRemaining, log)
	return f
}

func (f *Facade) decodeID(frame []byte) (uint32, error) {
	h, err := UnmarshalHeader(frame)
	if err != nil {
		return 0, err
	}
	return h.MessageID, nil
}

// Build produces a complete framed byte buffer: a header (configured
// magic, response endpoint, message ID, archive kind) immediately
// followed by the serialized body.
func (f *Facade) Build(msg interface{}, archive Archive, id uint32, response Endpoint) ([]byte, error) {
	if !archive.Valid() {
		return nil, errs.Wrapf(errs.ErrArchiveType, "unknown archive kind %d", archive)
	}

	body, err := f.Serializer.Marshal(archive, msg)
	if err != nil {
		return nil, err
	}

	h := MessageHeader{
		Magic:           fixedField(f.Magic),
		ResponseAddress: fixedField(response.Host),
		ResponsePort:    response.Port,
		MessageID:       id,
		ArchiveType:     archive,
		TotalLength:     uint32(HeaderSize + len(body)),
	}

	frame := make([]byte, 0, HeaderSize+len(body))
	frame = append(frame, h.Marshal()...)
	frame = append(frame, body...)
	return frame, nil
}

// Decode unmarshals body per the archive kind recorded in header into
// v, the receive-side counterpart to Build used once a caller has a
// ReceivedMessage in hand and knows what type to decode into.
func (f *Facade) Decode(msg ReceivedMessage, v interface{}) error {
	return f.Serializer.Unmarshal(msg.Header.ArchiveType, msg.Body, v)
}

// RegisterHandler binds a handler for id to this façade's dispatcher.
func (f *Facade) RegisterHandler(id uint32, h func(ReceivedMessage) (release bool)) error {
	return f.Dispatcher.RegisterHandler(id, func(frame []byte) bool {
		hdr, body, err := f.split(frame)
		if err != nil {
			if f.Log != nil {
				f.Log.WithError(err).Warn("codec: dropping malformed frame")
			}
			return true
		}
		return h(ReceivedMessage{Header: hdr, Body: body})
	})
}

func (f *Facade) split(frame []byte) (MessageHeader, []byte, error) {
	if len(frame) < HeaderSize {
		return MessageHeader{}, nil, errs.Wrap(errs.ErrMessageLength, "frame shorter than header")
	}
	h, err := UnmarshalHeader(frame)
	if err != nil {
		return MessageHeader{}, nil, err
	}
	if h.MagicString() != f.Magic {
		return MessageHeader{}, nil, errs.Wrap(errs.ErrMagicMismatch, "unexpected magic")
	}
	if int(h.TotalLength) < len(frame) {
		return MessageHeader{}, nil, errs.Wrap(errs.ErrMessageLength, "totalLength shorter than frame")
	}
	return h, frame[HeaderSize:], nil
}

// Dispatch validates frame (length, magic, totalLength per spec
// section 4.M/§7) and pushes it onto the façade's mqueue.Thread, which
// will decode its ID and invoke the registered handler off the I/O
// goroutines.
func (f *Facade) Dispatch(frame []byte) error {
	if _, _, err := f.split(frame); err != nil {
		return err
	}
	f.Dispatcher.Push(frame)
	return nil
}

// Close stops the façade's dispatcher thread.
func (f *Facade) Close() {
	f.Dispatcher.Stop()
}
