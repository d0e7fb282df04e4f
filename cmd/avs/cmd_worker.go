package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/h4shk4t/validAI-Contract/internal/backend"
	"github.com/h4shk4t/validAI-Contract/internal/backend/ollama"
	"github.com/h4shk4t/validAI-Contract/internal/config"
	"github.com/h4shk4t/validAI-Contract/internal/engine"
)

func newWorkerCmd(stdout, stderr io.Writer, cfg config.Config) *cobra.Command {
	var (
		backendName string
		ollamaURL   string
		models      []string
		echoModels  []string
		timeout     time.Duration
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the off-chain inference worker",
		Long: `Follow the coordinator's task-request stream, run each prompt on an
inference backend and answer the pending request.

Requests for models no backend serves are skipped and resolve to
TimeOutError on the coordinator. The placeholder model "model_name" is
always answered by the echo backend.

Examples:
  avs worker --backend ollama --models llama3.2,mistral
  avs worker --backend echo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := buildRegistry(backendName, ollamaURL, models, echoModels, concurrency)
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			logger := config.NewLogger(stderr, cfg.LogLevel)
			eng := engine.NewEngine(c, reg, logger, engine.Options{JobTimeout: timeout})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			for _, b := range reg.List() {
				fmt.Fprintf(stdout, "backend %s: models=%v\n", b.Name, b.Capabilities.Models)
			}
			logger.Info("worker: starting", "backend", backendName, "job_timeout", timeout.String())
			return eng.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", cfg.WorkerBackend, "Default inference backend: ollama or echo (env AVS_WORKER_BACKEND)")
	cmd.Flags().StringVar(&ollamaURL, "ollama-url", cfg.OllamaURL, "Ollama API base URL (env AVS_OLLAMA_URL)")
	cmd.Flags().StringSliceVar(&models, "models", cfg.OllamaModels, "Models the ollama backend serves; empty means any (env AVS_OLLAMA_MODELS)")
	cmd.Flags().StringSliceVar(&echoModels, "echo", []string{"model_name"}, "Models routed to the echo backend")
	cmd.Flags().DurationVar(&timeout, "timeout", cfg.WorkerTimeout, "Per-job inference timeout (env AVS_WORKER_TIMEOUT)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum concurrent ollama calls (0 uses the backend default)")

	return cmd
}

// buildRegistry registers the chosen default backend and routes echoModels
// to the echo backend.
func buildRegistry(name, ollamaURL string, models, echoModels []string, concurrency int) (*backend.Registry, error) {
	reg := backend.NewRegistry()
	switch name {
	case "ollama":
		reg.Register("ollama", ollama.New(ollama.Config{
			URL:           ollamaURL,
			Models:        models,
			MaxConcurrent: concurrency,
		}, nil))
		reg.Register("echo", backend.Echo{})
	case "echo":
		reg.Register("echo", backend.Echo{})
	default:
		return nil, fmt.Errorf("unknown backend %q: must be ollama or echo", name)
	}
	for _, m := range echoModels {
		if err := reg.Route(m, "echo"); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
