package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MKWorldWide/divinebus/client"
)

func init() {
	var (
		addr    string
		timeout time.Duration
	)

	callCmd := &cobra.Command{
		Use:   "call METHOD [PARAMS_JSON]",
		Short: "Issue one RPC against a running bus and print the response",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("shared_secret")
			if secret == "" {
				return fmt.Errorf("set DIVINEBUS_SHARED_SECRET to the peer's shared secret")
			}

			var params map[string]any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return fmt.Errorf("parse params: %w", err)
				}
			}

			c, err := client.Dial(addr, []byte(secret))
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := c.Call(ctx, args[0], params)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	callCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9001", "bus address")
	callCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "call timeout")

	rootCmd.AddCommand(callCmd)
}
