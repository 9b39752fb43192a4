package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nengajo/cmd/internal/passphrase"
	"nengajo/config"
	"nengajo/core"
	"nengajo/core/events"
	"nengajo/indexer"
	"nengajo/observability"
	"nengajo/observability/logging"
	telemetry "nengajo/observability/otel"
	"nengajo/rpc"
	"nengajo/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "nengajod: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	var opts []config.LoadOption
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		pass, err := passphrase.NewSource(config.EnvKeyPass, "admin keystore").Get()
		if err != nil {
			return err
		}
		opts = append(opts, config.WithKeystorePassphrase(pass))
	}
	cfg, err := config.Load(configFile, opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("nengajod", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "nengajod",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	genesis, err := cfg.Genesis()
	if err != nil {
		return fmt.Errorf("build genesis: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, genesis)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	node.SetLogger(logger)

	subscribers := events.Fanout{observability.Events()}
	var activity *indexer.Store
	if driver := strings.TrimSpace(cfg.Indexer.Driver); driver != "" {
		activity, err = indexer.Open(driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open activity index: %w", err)
		}
		defer func() { _ = activity.Close() }()
		activity.SetLogger(logger)
		subscribers = append(subscribers, activity)
	}
	node.SetEmitter(subscribers)

	if mintable, err := node.Mintable(); err == nil {
		observability.Drop().SetMintable(mintable)
	}
	if height, err := node.Height(); err == nil {
		observability.Drop().SetHeight(height)
	}

	token := strings.TrimSpace(os.Getenv(cfg.RPC.AuthTokenEnv))
	jwtCfg := rpc.JWTConfig{
		Secret:   strings.TrimSpace(os.Getenv(cfg.RPC.JWTSecretEnv)),
		Issuer:   cfg.RPC.JWTIssuer,
		Audience: cfg.RPC.JWTAudience,
	}
	server := rpc.NewServer(node, activity, rpc.ServerConfig{
		AuthToken:         token,
		JWT:               jwtCfg,
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeoutSeconds) * time.Second,
		TrustedProxies:    cfg.RPC.TrustedProxies,
	})
	server.SetLogger(logger)

	logger.Info("drop ready",
		slog.Uint64("chain_id", node.ChainID()),
		slog.String("name", genesis.Drop.Name),
		slog.Int64("open_at", genesis.Drop.Window.OpenAt),
		slog.Int64("close_at", genesis.Drop.Window.CloseAt),
		logging.MaskField("rpc_token", token),
		slog.Bool("indexer", activity != nil))
	if token == "" && jwtCfg.Secret == "" {
		logger.Warn("RPC credentials not set; sendTransaction is unauthenticated", slog.String("env", cfg.RPC.AuthTokenEnv))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.RPCAddress)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown", slog.Any("error", err))
	}
	select {
	case err := <-serveErr:
		return err
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}
