package main

import (
	"strconv"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func init() {
	rootCmd.AddCommand(cmdRobotInfo)
	rootCmd.AddCommand(cmdMode)
}

var (
	cmdRobotInfo = &cobra.Command{
		Use:     "robot-info <version>",
		Example: "otactl robot-info R2.0.1",
		Short:   "Record the robot system version",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, err := clientFromContext(ctx).SetRobotInfo(ctx, wrapperspb.String(args[0]))
			return err
		},
	}

	cmdMode = &cobra.Command{
		Use:     "mode <on|off>",
		Example: "otactl mode on",
		Short:   "Enable or disable OTA mode",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				var err error
				if enabled, err = strconv.ParseBool(args[0]); err != nil {
					return err
				}
			}

			_, err := clientFromContext(ctx).SetOtaMode(ctx, wrapperspb.Bool(enabled))
			return err
		},
	}
)
