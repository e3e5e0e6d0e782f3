package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "divinebus",
		Short: "divinebus - encrypted RPC channel between the supervisor and the core",
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/athena.json", "channel config file (JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose development logging")

	viper.SetEnvPrefix("divinebus")
	viper.AutomaticEnv()
}
