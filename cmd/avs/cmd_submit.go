package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

func newSubmitCmd(stdout io.Writer) *cobra.Command {
	var (
		modelName string
		proof     string
		performer string
		taskDef   uint16
		wait      bool
	)

	cmd := &cobra.Command{
		Use:   "submit [prompt]",
		Short: "Open an inference request",
		Long: `Open an inference request and print the yield id that answers it.

With a prompt argument the proof of task is built from --model and the
prompt. Use --proof to send a raw proof of task instead. With --wait the
command blocks until the request is answered or times out.

Examples:
  avs submit --model llama3.2 "What is 6*7?"
  avs submit --proof "opaque-proof" --wait`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if proof != "" {
					return fmt.Errorf("use either a prompt argument or --proof, not both")
				}
				b, err := json.Marshal(model.TaskDescriptor{ModelName: modelName, Prompt: args[0]})
				if err != nil {
					return err
				}
				proof = string(b)
			}

			task := model.BeforeTask{
				TaskDefinitionID: taskDef,
				Attestation:      model.Attestation{ProofOfTask: proof, IsApproved: true},
			}
			if performer != "" {
				id, err := model.ParseAccountID(performer)
				if err != nil {
					return fmt.Errorf("--performer: %w", err)
				}
				task.Performer = id
			}

			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			sub, err := c.SubmitTask(cmd.Context(), task, wait)
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "Request %d opened\n", sub.RequestID)
			fmt.Fprintf(stdout, "  Yield:   %s\n", sub.YieldID)
			printLogs(stdout, sub.ReceiptID, sub.Logs)
			if sub.Result != nil {
				fmt.Fprintf(stdout, "  Result:  %s\n", sub.Result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model", model.DefaultModelName, "Model that should answer the prompt")
	cmd.Flags().StringVar(&proof, "proof", "", "Raw proof of task")
	cmd.Flags().StringVar(&performer, "performer", "", "Performer account")
	cmd.Flags().Uint16Var(&taskDef, "task-definition", 0, "Task definition id")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the request resolves")

	return cmd
}
