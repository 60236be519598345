package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/uptime-industries/ota-agent/internal/agent"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var statusURL string

func init() {
	cmdUpdateWatch.Flags().StringVar(&statusURL, "status-url", "ws://127.0.0.1:9667/ws/status", "websocket status endpoint of the ota-agent")

	cmdUpdate.AddCommand(cmdUpdateStart)
	cmdUpdate.AddCommand(cmdUpdateStatus)
	cmdUpdate.AddCommand(cmdUpdateWatch)
	rootCmd.AddCommand(cmdUpdate)
}

var (
	cmdUpdate = &cobra.Command{
		Use:   "update",
		Short: "Update session commands",
	}

	cmdUpdateStart = &cobra.Command{
		Use:     "start <dir>",
		Example: "otactl update start /data/ota/package",
		Short:   "Start an update from an extracted bundle directory",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			_, err = clientFromContext(ctx).StartUpdate(ctx, wrapperspb.String(dir))
			return err
		},
	}

	cmdUpdateStatus = &cobra.Command{
		Use:   "status",
		Short: "Print the status of the current or last update session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := clientFromContext(ctx).GetUpdateStatus(ctx, &emptypb.Empty{})
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), agent.StatusFromStruct(res))
		},
	}

	cmdUpdateWatch = &cobra.Command{
		Use:   "watch",
		Short: "Follow the update status until the session finishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, statusURL, nil)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", statusURL, err)
			}
			defer conn.Close()

			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()

			for {
				var st agent.Status
				if err := conn.ReadJSON(&st); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return err
				}
				if err := printStatus(cmd.OutOrStdout(), st); err != nil {
					return err
				}
				switch st.Stage {
				case checkpoint.StageFailed:
					return fmt.Errorf("update failed: %s", st.Error)
				case checkpoint.StageSuccess:
					return nil
				}
			}
		},
	}
)

func printStatus(w io.Writer, st agent.Status) error {
	line := fmt.Sprintf("stage=%s progress=%d%%", st.Stage, st.Progress)
	if st.Phase != "" {
		line += " phase=" + st.Phase
	}
	if st.Error != "" {
		line += " error=" + fmt.Sprintf("%q", st.Error)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
