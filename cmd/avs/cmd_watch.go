package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

func newWatchCmd(stdout io.Writer) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print task requests as they are announced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			seen := 0
			errDone := errors.New("done")
			err = c.SubscribeTasks(ctx, func(ev model.TaskRequestEvent) error {
				fmt.Fprintf(stdout, "%s\t%s\t%s\n", ev.YieldID, ev.ModelName, ev.Prompt)
				seen++
				if count > 0 && seen >= count {
					return errDone
				}
				return nil
			})
			if errors.Is(err, errDone) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many requests (0 means run until interrupted)")

	return cmd
}
