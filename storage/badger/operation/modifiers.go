package operation

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/sethvargo/go-retry"

	"github.com/ledgerbft/node/storage"
)

const (
	conflictRetryDelay = time.Millisecond
	maxConflictRetries = 10
)

// SkipDuplicates makes an insert idempotent.
func SkipDuplicates(op func(*badger.Txn) error) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		err := op(tx)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil
		}
		return err
	}
}

// RetryOnConflict runs op through action (db.Update) again while badger
// reports a transaction conflict, at most maxConflictRetries times.
func RetryOnConflict(action func(func(*badger.Txn) error) error, op func(*badger.Txn) error) error {
	backoff := retry.WithMaxRetries(maxConflictRetries, retry.NewConstant(conflictRetryDelay))
	return retry.Do(context.Background(), backoff, func(context.Context) error {
		err := action(op)
		if errors.Is(err, badger.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// TerminateOnFullDisk panics on ENOSPC. A node that can not persist its
// ledger must not keep voting.
func TerminateOnFullDisk(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		panic("disk full, terminating node")
	}
	return err
}
