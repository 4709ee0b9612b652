package internal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes/decodes values T to []byte for storage.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// JSON is the default codec. Field names are preserved as tagged and unknown
// fields are ignored on decode, so cached and persisted shapes can drift.
type JSON[T any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[T]) Encode(v T) ([]byte, error) { return json.Marshal(v) }

func (JSON[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// Msgpack serializes values using vmihailenco/msgpack/v5.
// The zero value is ready to use. Struct fields fall back to `json` tags.
type Msgpack[T any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (Msgpack[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[T]) Decode(b []byte) (T, error) {
	var v T
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	err := dec.Decode(&v)
	return v, err
}

// CBOR serializes values using fxamacker/cbor. Construct with NewCBOR.
// Time values are encoded as RFC3339Nano.
type CBOR[T any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// NewCBOR builds a CBOR codec using PreferredUnsortedEncOptions.
func NewCBOR[T any]() (CBOR[T], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[T]{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR[T]{}, err
	}
	return CBOR[T]{enc: em, dec: dm}, nil
}

func (c CBOR[T]) Encode(v T) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR[T]) Decode(b []byte) (T, error) {
	var v T
	err := c.dec.Unmarshal(b, &v)
	return v, err
}

// NewCodec returns the codec registered under name: "json" (or ""), "msgpack" or "cbor".
func NewCodec[T any](name string) (Codec[T], error) {
	switch name {
	case "", "json":
		return JSON[T]{}, nil
	case "msgpack":
		return Msgpack[T]{}, nil
	case "cbor":
		c, err := NewCBOR[T]()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown codec %q", name), nil)
	}
}
