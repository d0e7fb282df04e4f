package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

func newRespondCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "respond <yield-id> <response>",
		Short: "Answer a pending request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseYieldID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Respond(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Answered %s\n", id)
			printLogs(stdout, res.ReceiptID, res.Logs)
			return nil
		},
	}
}

func newRequestCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "request <yield-id>",
		Short: "Show a request and its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseYieldID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			y, err := c.Request(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Request %s\n", y.ID)
			fmt.Fprintf(stdout, "  Status:   %s\n", y.Status)
			fmt.Fprintf(stdout, "  Deadline: %s\n", y.Deadline.Format("2006-01-02 15:04:05Z07:00"))
			if len(y.Result) > 0 {
				fmt.Fprintf(stdout, "  Result:   %s\n", y.Result)
			}
			return nil
		},
	}
}
