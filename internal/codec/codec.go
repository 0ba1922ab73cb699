// Package codec hides the wire encoding of bridge frames.
//
// The bridge speaks either CBOR (default) or JSON. Both codecs understand
// [RawMessage], so envelope decoding can defer payload decoding to the
// component that knows the payload type.
package codec

import "io"

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec is a Marshaler and Unmarshaler for one encoding. Name is the
// websocket subprotocol advertised for it.
type Codec interface {
	Marshaler
	Unmarshaler
	Name() string
}

// ByName returns the codec registered for a subprotocol name, falling back
// to CBOR for an empty name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "", cborName:
		return CBOR(), true
	case jsonName:
		return JSON(), true
	}
	return nil, false
}
