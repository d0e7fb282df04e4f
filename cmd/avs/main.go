// avs is the operator CLI for the coordinator: it submits and inspects
// requests, registers models and runs the off-chain inference worker.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/h4shk4t/validAI-Contract/internal/client"
	"github.com/h4shk4t/validAI-Contract/internal/config"
	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// Version metadata injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit signals a non-zero exit after the command has already written its
// own error to stderr.
var errExit = errors.New("exit")

// run executes the avs CLI with the given args.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintf(stderr, "avs: %v\n", err)
		}
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:           "avs",
		Short:         "Coordinator CLI for AI inference requests",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "avs: unknown command %q\n", args[0])
			return errExit
		},
	}
	root.PersistentFlags().String("server", cfg.ServerURL, "Coordinator base URL (env AVS_SERVER_URL)")
	root.PersistentFlags().String("account", cfg.Account, "Account to call as (env AVS_ACCOUNT)")

	root.AddCommand(
		newInitCmd(stdout),
		newSubmitCmd(stdout),
		newRespondCmd(stdout),
		newRegisterCmd(stdout),
		newModelCmd(stdout),
		newRewardCmd(stdout),
		newRequestCmd(stdout),
		newBalanceCmd(stdout),
		newWatchCmd(stdout),
		newWorkerCmd(stdout, stderr, cfg),
		newVersionCmd(stdout),
	)
	return root
}

// newClient builds an API client from the persistent flags.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	account, _ := cmd.Flags().GetString("account")

	var opts []client.Option
	if account != "" {
		id, err := model.ParseAccountID(account)
		if err != nil {
			return nil, fmt.Errorf("--account: %w", err)
		}
		opts = append(opts, client.WithAccount(id))
	}
	return client.New(server, opts...), nil
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "avs %s (%s)\n", version, commit)
		},
	}
}

// printLogs writes receipt log lines indented under a heading.
func printLogs(w io.Writer, receiptID string, logs []string) {
	fmt.Fprintf(w, "  Receipt: %s\n", receiptID)
	for _, l := range logs {
		fmt.Fprintf(w, "  log: %s\n", l)
	}
}
