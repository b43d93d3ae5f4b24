package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/addongate/addongate/internal/addon"
	"github.com/addongate/addongate/internal/api"
	"github.com/addongate/addongate/internal/auth"
	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/config"
	"github.com/addongate/addongate/internal/dispatch"
	"github.com/addongate/addongate/internal/engine"
	"github.com/addongate/addongate/internal/log"
	"github.com/addongate/addongate/internal/recorder"
	"github.com/addongate/addongate/internal/storage"
)

const version = "0.1.0"

func main() {
	fs := flag.NewFlagSet("addongate", flag.ExitOnError)
	configPath := fs.String("config", "./config.yaml", "path to config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	lockConfig := fs.Bool("lock", false, "record the config file's hash and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("addongate version %s\n", version)
		os.Exit(0)
	}

	if *lockConfig {
		if err := config.WriteLock(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Locked %s\n", *configPath)
		os.Exit(0)
	}

	os.Exit(run(*configPath))
}

func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("starting", "service", cfg.Service.Name, "version", version,
		"production", cfg.Service.Production, "test_mode", cfg.Service.TestMode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	addons := addon.NewRegistry()
	if err := addons.Discover(cfg.AddonsDir); err != nil {
		logger.Error("failed to discover addons", "error", err)
		return 1
	}
	logger.Info("addons registered", "count", len(addons.IDs()), "ids", addons.IDs())

	verifier, err := buildVerifier(cfg)
	if err != nil {
		logger.Error("failed to build verifier", "error", err)
		return 1
	}

	var rec dispatch.Recorder
	if cfg.Record.Enabled {
		rec = recorder.NewStore(db)
	}

	eng, err := engine.New(engine.Options{
		Addons:   addons,
		Verifier: verifier,
		Store:    cache.NewSQLiteStore(db),
		Recorder: rec,
		Settings: dispatch.Settings{
			Production: cfg.Service.Production,
			TestMode:   cfg.Service.TestMode,
			SkipAuth:   cfg.Auth.Skip,
		},
	})
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		return 1
	}

	server := api.New(api.Config{Listen: cfg.API.Listen}, eng, log.WithComponent("api"))
	if err := server.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("server stopped", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

func buildVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.Auth.Secret == "" {
		// No secret configured: every signature is rejected as invalid, and
		// the bypass matrix decides what proceeds.
		return rejectAllVerifier{}, nil
	}
	return auth.NewJWTVerifier(cfg.Auth.Secret)
}

type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify(ctx context.Context, sig string) (*auth.Identity, error) {
	if sig == "" {
		return nil, auth.ErrMissing
	}
	return nil, auth.ErrInvalid
}
