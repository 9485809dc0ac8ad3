package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	flagLogLevel string
	flagDataDir  string
	log          zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bftnode",
	Short: "Run and inspect BFT ledger nodes",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(viper.GetString("loglevel"))
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		log = log.Level(level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagLogLevel, "loglevel", "l", "info", "log level (panic, fatal, error, warn, info, debug)")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "datadir", "d", "", "directory of the node databases, empty keeps all state in memory")
	bindFlags(rootCmd.PersistentFlags())

	log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cobra.OnInitialize(initConfig)
}

// bindFlags makes the flags readable through viper.
func bindFlags(flags *pflag.FlagSet) {
	err := viper.BindPFlags(flags)
	if err != nil {
		panic(fmt.Sprintf("could not bind flags: %v", err))
	}
}

// initConfig lets BFTNODE_* environment variables override flags.
func initConfig() {
	viper.SetEnvPrefix("bftnode")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
