package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/storage"
	bstorage "github.com/ledgerbft/node/storage/badger"
)

var flagCountCommands bool

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print the committed ledger state stored in --datadir",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("datadir")
		if dir == "" {
			return fmt.Errorf("missing flag: --datadir")
		}
		isBadger, isEmpty, err := storage.CheckFolder(dir)
		if err != nil {
			return fmt.Errorf("could not inspect %s: %w", dir, err)
		}
		if isEmpty || !isBadger {
			return fmt.Errorf("no node database in %s", dir)
		}
		db, err := bstorage.Open(dir)
		if err != nil {
			return err
		}
		defer db.Close()
		ledger := bstorage.NewLedger(db)

		last, err := ledger.LastProof()
		if errors.Is(err, storage.ErrNotFound) {
			log.Info().Msg("nothing committed yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read last proof: %w", err)
		}
		prettyPrint(last.Header)

		for epoch := uint64(1); epoch < last.Header.Epoch; epoch++ {
			proof, err := ledger.EpochProof(epoch)
			if err != nil {
				return fmt.Errorf("could not read the proof ending epoch %d: %w", epoch, err)
			}
			prettyPrint(proof.Header)
		}

		if !flagCountCommands {
			return nil
		}
		total := 0
		from := &flow.LedgerHeader{Epoch: 1}
		for {
			batch, err := ledger.CommandsAndProofAfter(from, 10_000)
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			if err != nil {
				return fmt.Errorf("could not read commands after height %d: %w", from.Height, err)
			}
			total += len(batch.Commands)
			from = &batch.Proof.Header
		}
		log.Info().Int("commands", total).Msg("committed commands")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().BoolVar(&flagCountCommands, "count-commands", false, "count all committed commands")
}

func prettyPrint(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.Error().Err(err).Msg("could not encode")
	}
}
