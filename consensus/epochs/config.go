package epochs

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/ledgerbft/node/consensus/bftsync"
	"github.com/ledgerbft/node/consensus/hotstuff/pacemaker/timeout"
)

type Config struct {
	Timeout timeout.Config
	Sync    bftsync.Config
	// EpochRequestLimit and EpochRequestBurst bound the GetEpochRequests
	// sent to a single peer.
	EpochRequestLimit rate.Limit
	EpochRequestBurst int
	// MinEpochRequestInterval is the lockout after a peer exhausted its burst.
	MinEpochRequestInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:                 timeout.DefaultConfig(),
		Sync:                    bftsync.DefaultConfig(),
		EpochRequestLimit:       rate.Every(time.Second),
		EpochRequestBurst:       1,
		MinEpochRequestInterval: 5 * time.Second,
	}
}
