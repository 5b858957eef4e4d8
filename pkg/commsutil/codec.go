package commsutil

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec names a wire encoding for envelopes and change events.
type Codec string

const (
	CodecJSON Codec = "json"
	CodecCBOR Codec = "cbor"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("commsutil: CBOR encoder initialization failed: " + err.Error())
	}

	// Runtime arguments decode into []any; nested maps must come back as
	// map[string]any so they can be re-decoded through encoding/json.
	cborDec, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("commsutil: CBOR decoder initialization failed: " + err.Error())
	}
}

// ParseCodec maps a config value to a Codec. Empty means JSON.
func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToLower(strings.TrimSpace(s))) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecCBOR:
		return CodecCBOR, nil
	default:
		return "", fmt.Errorf("unsupported codec %q (want json or cbor)", s)
	}
}

// Encode serializes v with the codec.
func (c Codec) Encode(v interface{}) ([]byte, error) {
	if c == CodecCBOR {
		return cborEnc.Marshal(v)
	}
	return EncodePayload(v)
}

// Decode deserializes data into v with the codec.
func (c Codec) Decode(data []byte, v interface{}) error {
	if c == CodecCBOR {
		return cborDec.Unmarshal(data, v)
	}
	return DecodePayload(data, v)
}

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
