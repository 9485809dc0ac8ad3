package operation

import (
	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack"

	"github.com/ledgerbft/node/module/irrecoverable"
)

// Values are msgpack documents compressed with snappy. Neither step can fail
// on data this package wrote, so codec errors are exceptions.

func encode(entity interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, irrecoverable.NewExceptionf("could not encode %T: %w", entity, err)
	}
	return snappy.Encode(nil, data), nil
}

func decode(value []byte, entity interface{}) error {
	data, err := snappy.Decode(nil, value)
	if err != nil {
		return irrecoverable.NewExceptionf("could not decompress value: %w", err)
	}
	err = msgpack.Unmarshal(data, entity)
	if err != nil {
		return irrecoverable.NewExceptionf("could not decode %T: %w", entity, err)
	}
	return nil
}
