package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"reflect"

	"github.com/corenetio/corenet/errs"
	"github.com/fxamacker/cbor/v2"
	gojson "github.com/goccy/go-json"
)

// Serializer is the external object-serialization collaborator spec
// section 1 calls out of scope: the façade calls it to turn a user
// value into frame-body bytes and back, once per archive kind. Only
// this interface is part of corenet; a production embedding can
// supply its own implementation in place of DefaultSerializer.
type Serializer interface {
	Marshal(archive Archive, v interface{}) ([]byte, error)
	Unmarshal(archive Archive, data []byte, v interface{}) error
}

// DefaultSerializer implements Serializer with one real library per
// archive kind, per SPEC_FULL.md section 2.2's domain-stack wiring:
// CBOR for the two binary archive kinds, goccy/go-json for text, the
// standard library for XML (no XML library appears anywhere in the
// retrieval pack) and for the raw POD copy (no "is this POD" library
// exists in the ecosystem either).
type DefaultSerializer struct{}

func (DefaultSerializer) Marshal(archive Archive, v interface{}) ([]byte, error) {
	switch archive {
	case ArchivePortableBinary, ArchiveBinary:
		return cbor.Marshal(v)
	case ArchiveText:
		return gojson.Marshal(v)
	case ArchiveXML:
		return xml.Marshal(v)
	case ArchiveRaw:
		return marshalRaw(v)
	default:
		return nil, errs.Wrapf(errs.ErrArchiveType, "unknown archive kind %d", archive)
	}
}

func (DefaultSerializer) Unmarshal(archive Archive, data []byte, v interface{}) error {
	switch archive {
	case ArchivePortableBinary, ArchiveBinary:
		return cbor.Unmarshal(data, v)
	case ArchiveText:
		return gojson.Unmarshal(data, v)
	case ArchiveXML:
		return xml.Unmarshal(data, v)
	case ArchiveRaw:
		return unmarshalRaw(data, v)
	default:
		return errs.Wrapf(errs.ErrArchiveType, "unknown archive kind %d", archive)
	}
}

// isPOD walks v's type rejecting pointers, interfaces, slices, maps,
// strings, channels and funcs at any depth: Go has no
// is_trivially_copyable predicate, so this recursive field walk is
// corenet's stand-in, restricted to what spec section 4.M actually
// requires (a byte-for-byte copyable value).
func isPOD(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Array:
		return isPOD(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !isPOD(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func marshalRaw(v interface{}) ([]byte, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if !isPOD(rv.Type()) {
		return nil, errs.Wrapf(errs.ErrArchiveType, "raw archive requires a POD value, got %s", rv.Type())
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, rv.Interface()); err != nil {
		return nil, errs.Wrap(err, "raw marshal")
	}
	return buf.Bytes(), nil
}

func unmarshalRaw(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errs.Wrap(errs.ErrArchiveType, "raw unmarshal requires a non-nil pointer")
	}
	elem := rv.Elem()
	if !isPOD(elem.Type()) {
		return errs.Wrapf(errs.ErrArchiveType, "raw archive requires a POD value, got %s", elem.Type())
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, v)
}
