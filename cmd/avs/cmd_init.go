package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

func newInitCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init <attestation-center>",
		Short: "Initialize the contract with its attestation center",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			center, err := model.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Init(cmd.Context(), center)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Initialized with attestation center %s\n", center)
			printLogs(stdout, res.ReceiptID, res.Logs)
			return nil
		},
	}
}
