package signature

import (
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"

	"github.com/ledgerbft/node/model/flow"
)

// DefaultBatchWorkers is the number of goroutines verifying one batch.
const DefaultBatchWorkers = 4

// minParallelBatch is the smallest batch verified on the worker pool; smaller
// batches are checked inline.
const minParallelBatch = 8

// SignedDigest is one signature to check as part of a batch.
type SignedDigest struct {
	SignerID  flow.Identifier
	Digest    flow.Identifier
	Signature []byte
	PublicKey []byte
}

// BatchVerifier checks many signatures concurrently.
type BatchVerifier struct {
	verifier Verifier
	workers  int
}

func NewBatchVerifier(verifier Verifier, workers int) *BatchVerifier {
	if workers < 1 {
		workers = 1
	}
	return &BatchVerifier{
		verifier: verifier,
		workers:  workers,
	}
}

// VerifyAll checks every signature of the batch. It returns nil if all of
// them verify, otherwise a multierror holding one InvalidSignerError per
// failed signature.
func (b *BatchVerifier) VerifyAll(batch []SignedDigest) error {
	if len(batch) < minParallelBatch || b.workers == 1 {
		var result *multierror.Error
		for _, item := range batch {
			err := b.verifier.Verify(item.Digest, item.Signature, item.PublicKey)
			if err != nil {
				result = multierror.Append(result, InvalidSignerError{SignerID: item.SignerID, Err: err})
			}
		}
		return result.ErrorOrNil()
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	pool := workerpool.New(b.workers)
	for _, item := range batch {
		item := item
		pool.Submit(func() {
			err := b.verifier.Verify(item.Digest, item.Signature, item.PublicKey)
			if err == nil {
				return
			}
			mu.Lock()
			result = multierror.Append(result, InvalidSignerError{SignerID: item.SignerID, Err: err})
			mu.Unlock()
		})
	}
	pool.StopWait()
	return result.ErrorOrNil()
}

// Valid returns the indices of the batch entries whose signatures verify.
func (b *BatchVerifier) Valid(batch []SignedDigest) []int {
	valid := make([]bool, len(batch))
	pool := workerpool.New(b.workers)
	for i, item := range batch {
		i, item := i, item
		pool.Submit(func() {
			valid[i] = b.verifier.Verify(item.Digest, item.Signature, item.PublicKey) == nil
		})
	}
	pool.StopWait()

	indices := make([]int, 0, len(batch))
	for i, ok := range valid {
		if ok {
			indices = append(indices, i)
		}
	}
	return indices
}
