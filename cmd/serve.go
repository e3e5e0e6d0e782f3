package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MKWorldWide/divinebus/bus"
	"github.com/MKWorldWide/divinebus/config"
)

func init() {
	var (
		host string
		port int
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the divine bus server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			// The secret never travels via flags; env only, to keep it out of ps.
			if secret := viper.GetString("shared_secret"); secret != "" {
				cfg.SharedSecret = secret
			}

			b, err := bus.New(cfg, logger)
			if err != nil {
				return err
			}
			if err := b.Start(); err != nil {
				return fmt.Errorf("start bus: %w", err)
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			return b.Stop()
		},
	}

	serveCmd.Flags().StringVar(&host, "host", config.DefaultHost, "listen host")
	serveCmd.Flags().IntVar(&port, "port", config.DefaultPort, "listen port")

	rootCmd.AddCommand(serveCmd)
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
