package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"
)

// Open opens the node's database in dir. An empty dir opens a database that
// lives in memory only.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open database in %q: %w", dir, err)
	}
	return db, nil
}
