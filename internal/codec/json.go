package codec

import (
	"io"

	"github.com/goccy/go-json"
)

const jsonName = "json"

type jsonCodec struct{}

// JSON returns a codec for engines and debugging proxies that cannot speak
// CBOR.
func JSON() Codec {
	return jsonCodec{}
}

func (jsonCodec) Name() string {
	return jsonName
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (jsonCodec) NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (jsonCodec) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
