package cbor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EncMode is the canonical encoding mode used wherever the byte
// representation of an entity feeds into a hash. Map keys are sorted and
// integers use their shortest form, so equal values always encode equally.
var EncMode = func() cbor.EncMode {
	options := cbor.CoreDetEncOptions()
	encMode, err := options.EncMode()
	if err != nil {
		panic(fmt.Errorf("could not build canonical cbor encoding mode: %w", err))
	}
	return encMode
}()

// DecMode rejects duplicate map keys and unknown fields.
var DecMode = func() cbor.DecMode {
	decMode, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Errorf("could not build cbor decoding mode: %w", err))
	}
	return decMode
}()

// Codec encodes and decodes values using deterministic CBOR.
type Codec struct{}

// NewCodec returns a CBOR codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Encode returns the canonical encoding of the value.
func (c *Codec) Encode(v interface{}) ([]byte, error) {
	return EncMode.Marshal(v)
}

// MustEncode panics if the value can not be encoded.
func (c *Codec) MustEncode(v interface{}) []byte {
	data, err := c.Encode(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode decodes data into the value pointed to by v.
func (c *Codec) Decode(data []byte, v interface{}) error {
	return DecMode.Unmarshal(data, v)
}

// MustDecode panics if the data can not be decoded.
func (c *Codec) MustDecode(data []byte, v interface{}) {
	err := c.Decode(data, v)
	if err != nil {
		panic(err)
	}
}
