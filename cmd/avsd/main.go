package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/h4shk4t/validAI-Contract/internal/api"
	"github.com/h4shk4t/validAI-Contract/internal/config"
	"github.com/h4shk4t/validAI-Contract/internal/contract"
	"github.com/h4shk4t/validAI-Contract/internal/host"
	"github.com/h4shk4t/validAI-Contract/internal/model"
	"github.com/h4shk4t/validAI-Contract/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("avsd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"yield_timeout", cfg.YieldTimeout.String(),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	rt := host.NewRuntime(db, logger, host.WithYieldTimeout(cfg.YieldTimeout))
	defer rt.Close()
	svc := contract.NewService(rt, logger)

	ctx := context.Background()
	restored, err := rt.Restore(ctx)
	if err != nil {
		log.Fatalf("failed to restore pending requests: %v", err)
	}
	if restored > 0 {
		logger.Info("restored pending requests", "count", restored)
	}

	if cfg.AttestationCenter != "" {
		center, err := model.ParseAccountID(cfg.AttestationCenter)
		if err != nil {
			log.Fatalf("invalid attestation center: %v", err)
		}
		_, err = svc.Init(ctx, center, center)
		if err != nil && !errors.Is(err, contract.ErrAlreadyInitialized) {
			log.Fatalf("failed to initialize contract: %v", err)
		}
	}

	srv := api.NewServer(cfg.ListenAddr, svc, db, logger, api.Options{
		RespondRPS:   cfg.RespondRPS,
		RespondBurst: cfg.RespondBurst,
	})

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
