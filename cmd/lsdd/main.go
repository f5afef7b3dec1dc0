package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lsdchain/config"
	"lsdchain/core"
	"lsdchain/indexer"
	"lsdchain/observability/logging"
	"lsdchain/rpc"
	"lsdchain/storage"
)

const envVar = "LSD_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides config GenesisFile)")
	pausedFlag := flag.Bool("paused", false, "Start with stake and unstake paused")
	flag.Parse()

	if err := run(*configFile, *genesisFlag, *pausedFlag); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile, genesisPath string, paused bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if path := strings.TrimSpace(genesisPath); path != "" {
		cfg.GenesisFile = path
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Logging.Env
	}
	logger, closer := logging.SetupWithFile("lsdd", env, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer closer.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	node, err := core.NewNode(db, core.Options{
		ChainID:            cfg.ChainID,
		MinimumStakePeriod: int64(cfg.Staking.MinimumStakePeriodSeconds),
		Paused:             cfg.Staking.Paused || paused,
		Logger:             logger,
	})
	if err != nil {
		db.Close()
		return err
	}
	defer node.Close()

	spec, err := cfg.GenesisSpec()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	applied, err := node.InitGenesis(spec)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied",
			slog.Uint64("chainId", cfg.ChainID),
			slog.Int("accounts", len(spec.Alloc)),
		)
	}

	idx, err := indexer.Open(cfg.IndexerPath(), logger)
	if err != nil {
		return fmt.Errorf("open indexer: %w", err)
	}
	defer idx.Close()
	node.Subscribe(idx.Handle)

	server := rpc.NewServer(node, idx, rpc.ServerConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		Logger:            logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("node started",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.Int64("minimumStakePeriod", node.MinimumStakePeriod()),
	)
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("node stopped")
	return nil
}
