package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

func newRegisterCmd(stdout io.Writer) *cobra.Command {
	var reward string

	cmd := &cobra.Command{
		Use:   "register <model-name> <operator-account>",
		Short: "Register the operator that serves a model",
		Long: `Register the operator account that serves a model. Model names are
case-sensitive and a later registration replaces an earlier one.

Examples:
  avs register llama3.2 operator.testnet --reward "2 NEAR"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := model.ParseAccountID(args[1])
			if err != nil {
				return err
			}
			amount, err := model.ParseToken(reward)
			if err != nil {
				return fmt.Errorf("--reward: %w", err)
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.RegisterModel(cmd.Context(), account, args[0], amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Registered %s for %s\n", args[0], account)
			printLogs(stdout, res.ReceiptID, res.Logs)
			return nil
		},
	}

	cmd.Flags().StringVar(&reward, "reward", "0", "Reward noted in the registration log (yoctoNEAR or \"1.5 NEAR\")")

	return cmd
}

func newModelCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "model <model-name>",
		Short: "Show the operator registered for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			account, err := c.Model(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s -> %s\n", args[0], account)
			return nil
		},
	}
}

func newRewardCmd(stdout io.Writer) *cobra.Command {
	var taskDef uint16

	cmd := &cobra.Command{
		Use:   "reward <model-name> <amount>",
		Short: "Complete a task and reward the model operator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := model.ParseToken(args[1])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.CompleteTask(cmd.Context(), model.AfterTask{
				TaskDefinitionID: taskDef,
				ModelInfo:        model.ModelInfo{ModelName: args[0], Reward: amount},
			})
			if err != nil {
				return err
			}
			if len(res.Transfers) == 0 {
				fmt.Fprintf(stdout, "No transfer for %s\n", args[0])
			}
			for _, tr := range res.Transfers {
				fmt.Fprintf(stdout, "Paid %s to %s\n", tr.Amount, tr.Recipient)
			}
			printLogs(stdout, res.ReceiptID, res.Logs)
			return nil
		},
	}

	cmd.Flags().Uint16Var(&taskDef, "task-definition", 0, "Task definition id")

	return cmd
}

func newBalanceCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account's reward balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := model.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			bal, err := c.Balance(cmd.Context(), account)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s: %s (%s yoctoNEAR)\n", bal.Account, bal.Display, bal.Balance.Yocto())
			return nil
		},
	}
}
