package codec

import "bytes"

var (
	cborNull = []byte{0xf6}
	jsonNull = []byte("null")
)

// RawMessage holds one encoded value whose decoding is deferred. It keeps
// the bytes of whichever codec decoded the enclosing frame, so it must be
// decoded later with that same codec.
type RawMessage []byte

// IsNull reports whether the message is absent or an explicit null.
func (m RawMessage) IsNull() bool {
	return len(m) == 0 || bytes.Equal(m, cborNull) || bytes.Equal(m, jsonNull)
}

// MarshalCBOR implements cbor.Marshaler.
func (m RawMessage) MarshalCBOR() ([]byte, error) {
	if len(m) == 0 {
		return cborNull, nil
	}
	return m, nil
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (m *RawMessage) UnmarshalCBOR(data []byte) error {
	*m = append((*m)[0:0], data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m RawMessage) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return jsonNull, nil
	}
	return m, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	*m = append((*m)[0:0], data...)
	return nil
}

// Decode decodes the held bytes into dst with u.
func (m RawMessage) Decode(u Unmarshaler, dst any) error {
	if m.IsNull() {
		return nil
	}
	return u.Unmarshal(m, dst)
}
