package operation

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/ledgerbft/node/storage"
)

// insert stores entity under key.
// Returns storage.ErrAlreadyExists if the key is taken.
func insert(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("could not look up key: %w", err)
		}
		return upsert(key, entity)(tx)
	}
}

// upsert stores entity under key, replacing any previous value.
func upsert(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		value, err := encode(entity)
		if err != nil {
			return err
		}
		err = tx.Set(key, value)
		if err != nil {
			return fmt.Errorf("could not write value: %w", err)
		}
		return nil
	}
}

// remove deletes the value under key. Missing keys are not an error.
func remove(key []byte) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		err := tx.Delete(key)
		if err != nil {
			return fmt.Errorf("could not delete value: %w", err)
		}
		return nil
	}
}

// retrieve decodes the value under key into entity, which must be a pointer.
// Returns storage.ErrNotFound if the key is absent.
func retrieve(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("could not read value: %w", err)
		}
		return item.Value(func(value []byte) error {
			return decode(value, entity)
		})
	}
}

// The iteration callbacks of one step: check filters on the key before the
// value is loaded, create returns the decode target and handle consumes it.
// handle returning false ends the iteration.
type (
	checkFunc     func(key []byte) bool
	createFunc    func() interface{}
	handleFunc    func() (bool, error)
	iterationFunc func() (checkFunc, createFunc, handleFunc)
)

// iterate walks the keys sharing prefix in ascending order, starting at the
// first key at or above start.
func iterate(prefix []byte, start []byte, iteration iterationFunc) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		if len(prefix) == 0 {
			return fmt.Errorf("iteration prefix must not be empty")
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			check, create, handle := iteration()
			if !check(item.Key()) {
				continue
			}
			entity := create()
			err := item.Value(func(value []byte) error {
				return decode(value, entity)
			})
			if err != nil {
				return err
			}
			next, err := handle()
			if err != nil {
				return err
			}
			if !next {
				return nil
			}
		}
		return nil
	}
}
