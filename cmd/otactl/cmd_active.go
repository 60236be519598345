package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptime-industries/ota-agent/internal/agent"
	"google.golang.org/protobuf/types/known/emptypb"
)

func init() {
	cmdActive.AddCommand(cmdActiveSet)
	cmdActive.AddCommand(cmdActiveGet)
	rootCmd.AddCommand(cmdActive)
}

var (
	cmdActive = &cobra.Command{
		Use:   "active",
		Short: "Activation of a flashed MCU image",
	}

	cmdActiveSet = &cobra.Command{
		Use:   "set",
		Short: "Request activation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, err := clientFromContext(ctx).SetActive(ctx, &emptypb.Empty{})
			return err
		},
	}

	cmdActiveGet = &cobra.Command{
		Use:   "get",
		Short: "Print the activation result (success, activating or failure)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := clientFromContext(ctx).GetActive(ctx, &emptypb.Empty{})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), agent.ActiveResult(res.GetValue()))
			return err
		},
	}
)
