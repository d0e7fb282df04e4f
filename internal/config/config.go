package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr   = ":8080"
	defaultDBPath       = "avs.db"
	defaultYieldTimeout = 4 * time.Minute
	defaultRespondRPS   = 20
	defaultRespondBurst = 40

	defaultServerURL     = "http://localhost:8080"
	defaultOllamaURL     = "http://localhost:11434"
	defaultWorkerBackend = "ollama"
	defaultWorkerTimeout = 3 * time.Minute

	envListenAddr        = "AVS_LISTEN_ADDR"
	envDBPath            = "AVS_DB_PATH"
	envLogLevel          = "AVS_LOG_LEVEL"
	envAttestationCenter = "AVS_ATTESTATION_CENTER"
	envYieldTimeout      = "AVS_YIELD_TIMEOUT"
	envRespondRPS        = "AVS_RESPOND_RPS"
	envRespondBurst      = "AVS_RESPOND_BURST"

	envServerURL     = "AVS_SERVER_URL"
	envAccount       = "AVS_ACCOUNT"
	envOllamaURL     = "AVS_OLLAMA_URL"
	envOllamaModels  = "AVS_OLLAMA_MODELS"
	envWorkerBackend = "AVS_WORKER_BACKEND"
	envWorkerTimeout = "AVS_WORKER_TIMEOUT"
)

// Config holds application configuration loaded from environment variables.
// The server reads the first group, the CLI and worker the second.
type Config struct {
	ListenAddr        string
	DBPath            string
	LogLevel          slog.Level
	AttestationCenter string
	YieldTimeout      time.Duration
	RespondRPS        float64
	RespondBurst      int

	ServerURL     string
	Account       string
	OllamaURL     string
	OllamaModels  []string
	WorkerBackend string
	WorkerTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Values that fail to parse keep their default.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		YieldTimeout:  defaultYieldTimeout,
		RespondRPS:    defaultRespondRPS,
		RespondBurst:  defaultRespondBurst,
		ServerURL:     defaultServerURL,
		OllamaURL:     defaultOllamaURL,
		WorkerBackend: defaultWorkerBackend,
		WorkerTimeout: defaultWorkerTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.AttestationCenter = os.Getenv(envAttestationCenter)
	cfg.YieldTimeout = durationEnv(envYieldTimeout, cfg.YieldTimeout)
	if v := os.Getenv(envRespondRPS); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RespondRPS = f
		}
	}
	if v := os.Getenv(envRespondBurst); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RespondBurst = n
		}
	}

	if v := os.Getenv(envServerURL); v != "" {
		cfg.ServerURL = v
	}
	cfg.Account = os.Getenv(envAccount)
	if v := os.Getenv(envOllamaURL); v != "" {
		cfg.OllamaURL = v
	}
	cfg.OllamaModels = splitList(os.Getenv(envOllamaModels))
	if v := os.Getenv(envWorkerBackend); v != "" {
		cfg.WorkerBackend = strings.ToLower(v)
	}
	cfg.WorkerTimeout = durationEnv(envWorkerTimeout, cfg.WorkerTimeout)

	return cfg
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
