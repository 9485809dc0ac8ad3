package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/engine/node"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/irrecoverable"
	"github.com/ledgerbft/node/module/metrics"
	"github.com/ledgerbft/node/module/util"
	"github.com/ledgerbft/node/network/stub"
	"github.com/ledgerbft/node/utils/logging"
)

var (
	flagValidators      int
	flagDuration        time.Duration
	flagLatency         time.Duration
	flagEpochMaxView    uint64
	flagCommandsPerView int
	flagRealtime        bool
	flagMetricsPort     uint
	flagProfiler        bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a network of validators in one process",
	Long: `Run a network of validators connected by an in-memory network.
By default the network runs on a simulated clock and the duration is virtual
time; with --realtime every node runs its own event loop on the wall clock and
metrics are served for prometheus.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntVarP(&flagValidators, "validators", "n", 4, "number of validators")
	simulateCmd.Flags().DurationVar(&flagDuration, "duration", time.Minute, "how long the network runs")
	simulateCmd.Flags().DurationVar(&flagLatency, "latency", 10*time.Millisecond, "message latency of the simulated network")
	simulateCmd.Flags().Uint64Var(&flagEpochMaxView, "epoch-max-view", 0, "view ending each epoch, 0 disables epoch changes")
	simulateCmd.Flags().IntVar(&flagCommandsPerView, "commands-per-view", 1, "synthetic commands proposed per view")
	simulateCmd.Flags().BoolVar(&flagRealtime, "realtime", false, "run on the wall clock")
	simulateCmd.Flags().UintVar(&flagMetricsPort, "metrics-port", 8080, "port of the metrics server in real-time mode")
	simulateCmd.Flags().BoolVar(&flagProfiler, "profiler", false, "serve pprof next to the metrics")
	bindFlags(simulateCmd.Flags())
}

func clusterConfig() node.ClusterConfig {
	config := node.DefaultClusterConfig()
	config.Validators = viper.GetInt("validators")
	config.Latency = viper.GetDuration("latency")
	config.Node.DataDir = viper.GetString("datadir")
	config.Node.CommandsPerView = viper.GetInt("commands-per-view")
	config.Node.Ledger.EpochMaxView = viper.GetUint64("epoch-max-view")
	return config
}

func runSimulate(cmd *cobra.Command, args []string) error {
	config := clusterConfig()
	if viper.GetBool("realtime") {
		return runRealtime(config, viper.GetDuration("duration"))
	}

	var counters []*CommitCounter
	var cluster *node.Cluster
	now := func() time.Time { return cluster.Sim.Now() }
	consumers := func(nodeID flow.Identifier) []hotstuff.Consumer {
		counter := NewCommitCounter(log.With().Hex("node_id", nodeID[:]).Logger(), now, 10*time.Second)
		counters = append(counters, counter)
		return []hotstuff.Consumer{counter}
	}
	cluster, err := node.NewCluster(log, config, metrics.NewNoopCollector(), consumers)
	if err != nil {
		return fmt.Errorf("could not create cluster: %w", err)
	}
	defer func() {
		if err := cluster.Close(); err != nil {
			log.Error().Err(err).Msg("could not close cluster")
		}
	}()

	err = cluster.RunFor(viper.GetDuration("duration"))
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	delivered, dropped := cluster.Hub.Stats()
	log.Info().
		Uint64("messages_delivered", delivered).
		Uint64("messages_dropped", dropped).
		Msg("simulation finished")
	for i, n := range cluster.Nodes {
		header := n.Ledger().CurrentHeader()
		log.Info().
			Hex("node_id", logging.ID(n.NodeID())).
			Uint64("epoch", n.Epoch()).
			Uint64("height", header.Height).
			Hex("accumulator", logging.ID(header.Accumulator)).
			Uint("committed_vertices", counters[i].Total()).
			Msg("node state")
	}
	return nil
}

func runRealtime(config node.ClusterConfig, duration time.Duration) error {
	keys, initial, err := node.ClusterSetup(config.Validators)
	if err != nil {
		return err
	}
	if config.Node.Ledger.EpochMaxView > 0 {
		config.Node.Ledger.NextValidators = func(uint64) *flow.ValidatorSet { return initial.Validators }
	}

	collector := metrics.NewNodeCollector(prometheus.DefaultRegisterer)
	server := metrics.NewServer(log, viper.GetUint("metrics-port"), viper.GetBool("profiler"))
	<-server.Ready()
	defer func() { <-server.Done() }()

	hub := stub.NewHub()
	nodes := make([]*node.Node, 0, len(keys))
	loops := make([]*node.Loop, 0, len(keys))
	defer func() {
		for _, n := range nodes {
			if err := n.Close(); err != nil {
				log.Error().Err(err).Msg("could not close node")
			}
		}
	}()

	for _, key := range keys {
		nodeID := key.NodeID()
		nodeLog := log.With().Hex("node_id", nodeID[:]).Logger()
		loop, err := node.NewLoop(nodeLog, nodeID, config.Node.QueueCapacity, collector)
		if err != nil {
			return err
		}
		conduit, err := hub.Register(nodeID, loop)
		if err != nil {
			return err
		}
		nodeConfig := config.Node
		if nodeConfig.DataDir != "" {
			nodeConfig.DataDir = fmt.Sprintf("%s/%s", nodeConfig.DataDir, nodeID)
		}
		counter := NewCommitCounter(nodeLog, time.Now, 10*time.Second)
		n, err := node.New(nodeLog, nodeConfig, key, initial, initial.Validators.NodeIDs(), conduit, loop, collector, counter)
		if err != nil {
			return fmt.Errorf("could not create node %x: %w", nodeID, err)
		}
		loop.SetHandler(n.Handle)
		nodes = append(nodes, n)
		loops = append(loops, loop)
	}

	// starting only queues events, the loops process them once started
	for _, n := range nodes {
		err := n.Start()
		if err != nil {
			return fmt.Errorf("could not start node %x: %w", n.NodeID(), err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
	components := make([]module.ReadyDoneAware, 0, len(loops))
	for _, loop := range loops {
		loop.Start(signalerCtx)
		components = append(components, loop)
	}
	<-util.AllReady(components...)
	log.Info().Int("nodes", len(nodes)).Msg("all event loops running")

	var result error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		result = multierror.Append(result, err)
		cancel()
	}
	<-util.AllDone(components...)

	for _, n := range nodes {
		header := n.Ledger().CurrentHeader()
		log.Info().
			Hex("node_id", logging.ID(n.NodeID())).
			Uint64("epoch", n.Epoch()).
			Uint64("height", header.Height).
			Msg("node state")
	}
	return result
}
