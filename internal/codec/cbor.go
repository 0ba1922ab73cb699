package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const cborName = "cbor"

// encMode uses Core Deterministic Encoding so equal frames produce equal
// bytes, which the fake engine relies on when comparing requests.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any so payloads can be handed
// to user callbacks without a conversion pass.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

// CBOR returns the default bridge codec.
func CBOR() Codec {
	return cborCodec{}
}

func (cborCodec) Name() string {
	return cborName
}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, dst any) error {
	return decMode.Unmarshal(data, dst)
}

func (cborCodec) NewEncoder(w io.Writer) Encoder {
	return encMode.NewEncoder(w)
}

func (cborCodec) NewDecoder(r io.Reader) Decoder {
	return decMode.NewDecoder(r)
}
