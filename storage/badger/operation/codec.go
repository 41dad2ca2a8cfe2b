package operation

import (
	"github.com/vmihailenco/msgpack/v4"

	"github.com/shardlabs/shard-go/module/irrecoverable"
)

// encodeEntity encodes the given entity using msgpack. Encoding failures
// are exceptions: they can only stem from programming errors, never from
// stored data.
func encodeEntity(entity interface{}) ([]byte, error) {
	val, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, irrecoverable.NewExceptionf("could not encode entity: %w", err)
	}
	return val, nil
}

// decodeValue decodes the given value into the given entity using msgpack.
func decodeValue(val []byte, entity interface{}) error {
	err := msgpack.Unmarshal(val, entity)
	if err != nil {
		return irrecoverable.NewExceptionf("could not decode entity: %w", err)
	}
	return nil
}
