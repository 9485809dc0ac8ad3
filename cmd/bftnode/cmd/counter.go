package cmd

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff/notifications"
	"github.com/ledgerbft/node/model/flow"
)

// CommitCounter periodically logs how many vertices a node committed. The
// first commit is always logged.
type CommitCounter struct {
	notifications.NoopConsumer
	log      zerolog.Logger
	now      func() time.Time
	interval time.Duration

	mu      sync.Mutex
	next    time.Time
	counter uint
	total   uint
	height  uint64
}

func NewCommitCounter(log zerolog.Logger, now func() time.Time, interval time.Duration) *CommitCounter {
	return &CommitCounter{
		log:      log,
		now:      now,
		interval: interval,
	}
}

func (c *CommitCounter) OnVerticesCommitted(vertices []*flow.Vertex, proof *flow.LedgerProof) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter += uint(len(vertices))
	c.total += uint(len(vertices))
	c.height = proof.Header.Height

	now := c.now()
	if now.Before(c.next) {
		return
	}
	c.log.Info().
		Dur("interval", c.interval).
		Uint("counter", c.counter).
		Uint("total", c.total).
		Uint64("height", c.height).
		Msg("committed vertices counter")
	c.next = now.Add(c.interval)
	c.counter = 0
}

// Total returns the number of vertices committed so far.
func (c *CommitCounter) Total() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
