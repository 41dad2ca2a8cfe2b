package operation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/shardlabs/shard-go/storage"
)

// insertDedup writes the entity under the key, enforcing per-key
// append-only semantics: an existing entry with the same encoding is left
// untouched, while an existing entry with a different encoding fails with
// storage.ErrDataMismatch. The check and the write happen inside one badger
// transaction, so two concurrent writes for the same key serialize through
// the transaction conflict mechanism rather than racing past the check.
func insertDedup(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {

		val, err := encodeEntity(entity)
		if err != nil {
			return err
		}

		item, err := tx.Get(key)
		if err == nil {
			return item.Value(func(existing []byte) error {
				if bytes.Equal(existing, val) {
					return nil
				}
				return storage.ErrDataMismatch
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("could not check key: %w", err)
		}

		err = tx.Set(key, val)
		if err != nil {
			return fmt.Errorf("could not store data: %w", err)
		}

		return nil
	}
}

// retrieve retrieves the binary data under the given key and decodes it
// into the given entity. It errors with storage.ErrNotFound if the key does
// not exist.
func retrieve(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {

		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("could not load data: %w", err)
		}

		err = item.Value(func(val []byte) error {
			return decodeValue(val, entity)
		})
		if err != nil {
			return fmt.Errorf("could not decode entity: %w", err)
		}

		return nil
	}
}

// scanIndexSuffixes iterates all keys starting with the given prefix and
// collects the trailing 2 bytes of each key, interpreted as a big-endian
// uint16. Keys under the prefix must have exactly a 2-byte suffix.
func scanIndexSuffixes(prefix []byte, indices *[]uint16) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if len(key) != len(prefix)+2 {
				return fmt.Errorf("malformed key of length %d under prefix of length %d", len(key), len(prefix))
			}
			*indices = append(*indices, binary.BigEndian.Uint16(key[len(prefix):]))
		}

		return nil
	}
}

// RetryOnConflict executes the given database operation, transparently
// retrying it for as long as badger reports a transaction conflict.
func RetryOnConflict(action func(func(*badger.Txn) error) error, op func(*badger.Txn) error) error {
	for {
		err := action(op)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}
