package node

import (
	"github.com/ledgerbft/node/consensus/epochs"
	"github.com/ledgerbft/node/engine/common/synchronization"
	"github.com/ledgerbft/node/module/ledger"
)

type Config struct {
	DataDir         string // empty keeps all state in memory
	CommandsPerView int    // synthetic commands proposed per view
	QueueCapacity   int    // events buffered by a real-time event loop
	Epochs          epochs.Config
	Sync            synchronization.Config
	Ledger          ledger.Config
}

func DefaultConfig() Config {
	return Config{
		CommandsPerView: 1,
		QueueCapacity:   10_000,
		Epochs:          epochs.DefaultConfig(),
		Sync:            synchronization.DefaultConfig(),
	}
}
