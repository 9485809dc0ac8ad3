package timeout

import (
	"time"

	"github.com/ledgerbft/node/consensus/hotstuff/model"
)

// Config contains the configuration parameters for a Truncated Exponential Backoff,
// as implemented by the `timeout.Controller`
//   - On timeout: increase timeout by multiplicative factor `TimeoutAdjustmentFactor`. This
//     results in exponentially growing timeout duration on multiple subsequent timeouts.
//   - On progress: decrease timeout by multiplicative factor `TimeoutAdjustmentFactor`.
type Config struct {
	// MinReplicaTimeout is the minimum the timeout can decrease to
	MinReplicaTimeout time.Duration
	// MaxReplicaTimeout is the maximum value the timeout can increase to
	MaxReplicaTimeout time.Duration
	// TimeoutAdjustmentFactor: MULTIPLICATIVE factor for increasing timeout when view
	// change was triggered by a TC (unhappy path) or decreasing the timeout on progress
	TimeoutAdjustmentFactor float64
	// HappyPathMaxRoundFailures is the number of rounds without progress where we still consider being
	// on hot path of execution. After exceeding this value we will start increasing timeout values.
	HappyPathMaxRoundFailures uint64
	// MaxTimeoutRebroadcastInterval is the maximum interval between re-broadcasts of
	// the timeout vote while the replica is stuck in the same view.
	MaxTimeoutRebroadcastInterval time.Duration
}

// DefaultConfig returns the timeout configuration used by nodes that do not
// override it.
func DefaultConfig() Config {
	cfg, err := NewConfig(
		1200*time.Millisecond,
		15*time.Second,
		1.5,
		3,
		5*time.Second,
	)
	if err != nil {
		panic(err)
	}
	return cfg
}

// NewConfig creates a new TimoutConfig.
//   - minReplicaTimeout: minimal timeout value for replica round [Milliseconds]
//     Consistency requirement: must be non-negative
//   - maxReplicaTimeout: maximal timeout value for replica round [Milliseconds]
//     Consistency requirement: must be non-negative and cannot be smaller than minReplicaTimeout
//   - timeoutAdjustmentFactor: multiplicative factor for adjusting timeout duration
//     Consistency requirement: must be strictly larger than 1
//   - happyPathMaxRoundFailures: number of successive failed rounds after which we will start increasing timeouts
//   - maxRebroadcastInterval: maximum interval between timeout vote re-broadcasts
//     Consistency requirement: must be positive
func NewConfig(
	minReplicaTimeout time.Duration,
	maxReplicaTimeout time.Duration,
	timeoutAdjustmentFactor float64,
	happyPathMaxRoundFailures uint64,
	maxRebroadcastInterval time.Duration,
) (Config, error) {
	if minReplicaTimeout <= 0 {
		return Config{}, model.NewConfigurationErrorf("minReplicaTimeout must be a positive number[milliseconds]")
	}
	if maxReplicaTimeout < minReplicaTimeout {
		return Config{}, model.NewConfigurationErrorf("maxReplicaTimeout cannot be smaller than minReplicaTimeout")
	}
	if timeoutAdjustmentFactor <= 1 {
		return Config{}, model.NewConfigurationErrorf("timeoutAdjustmentFactor must be strictly bigger than 1")
	}
	if maxRebroadcastInterval <= 0 {
		return Config{}, model.NewConfigurationErrorf("maxRebroadcastInterval must be a positive number [milliseconds]")
	}

	return Config{
		MinReplicaTimeout:             minReplicaTimeout,
		MaxReplicaTimeout:             maxReplicaTimeout,
		TimeoutAdjustmentFactor:       timeoutAdjustmentFactor,
		HappyPathMaxRoundFailures:     happyPathMaxRoundFailures,
		MaxTimeoutRebroadcastInterval: maxRebroadcastInterval,
	}, nil
}
