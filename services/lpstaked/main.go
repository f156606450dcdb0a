package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"lpstaking/core/events"
	"lpstaking/core/state"
	nativecommon "lpstaking/native/common"
	"lpstaking/native/lpstake"
	"lpstaking/observability/logging"
	telemetry "lpstaking/observability/otel"
	"lpstaking/services/lpstake/indexer"
	"lpstaking/services/lpstake/server"
	"lpstaking/services/lpstake/stream"
	"lpstaking/services/lpstaked/config"
	"lpstaking/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("lpstaked: %v", err)
	}
}

// run wires the daemon from flags and configuration and serves until ctx is
// cancelled.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lpstaked", flag.ContinueOnError)
	cfgPath := fs.String("config", "services/lpstaked/config.yaml", "path to lpstaked configuration file")
	genesisPath := fs.String("genesis", "", "TOML genesis applied at startup (overrides config)")
	envFile := fs.String("env-file", ".env", "optional dotenv file loaded before configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	if override := strings.TrimSpace(os.Getenv("LPSTAKED_CONFIG")); override != "" && !flagSet(fs, "config") {
		*cfgPath = override
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	genesis := strings.TrimSpace(*genesisPath)
	if genesis == "" {
		genesis = cfg.GenesisPath
	}

	env := cfg.Logging.Env
	if value := strings.TrimSpace(os.Getenv("LPSTAKE_ENV")); value != "" {
		env = value
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    "lpstaked",
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	endpoint := cfg.Telemetry.Endpoint
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); value != "" {
		endpoint = value
	}
	headers := cfg.Telemetry.Headers
	if raw := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); strings.TrimSpace(raw) != "" {
		headers = telemetry.ParseHeaders(raw)
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "lpstaked",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	sinks := events.Fanout{}
	var history server.History
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		gdb, err := indexer.Open(dsn)
		if err != nil {
			return err
		}
		idx, err := indexer.New(gdb, logger)
		if err != nil {
			return fmt.Errorf("start indexer: %w", err)
		}
		defer idx.Close()
		sinks = append(sinks, idx)
		history = idx
	}
	if url := strings.TrimSpace(cfg.Stream.NATSURL); url != "" {
		pub, err := stream.Connect(url, cfg.Stream.Subject, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	var hub *stream.Hub
	if cfg.Stream.Websocket {
		hub = stream.NewHub(cfg.Stream.Buffer, logger)
		sinks = append(sinks, hub)
	}

	pauses := nativecommon.StaticPauses{}
	for _, module := range cfg.PausedModules {
		pauses[strings.TrimSpace(module)] = true
	}
	proc := lpstake.NewProcessor(state.NewManager(db),
		lpstake.WithSink(sinks),
		lpstake.WithLogger(logger),
		lpstake.WithPauses(pauses),
	)

	if genesis != "" {
		genesisCfg, err := lpstake.LoadConfig(genesis)
		if err != nil {
			return err
		}
		pools, err := proc.ApplyGenesis(ctx, genesisCfg)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied", slog.String("path", genesis), slog.Int("pools", len(pools)))
	}

	accounts := make([]server.Account, 0, len(cfg.Auth.Accounts))
	for _, acct := range cfg.Auth.Accounts {
		accounts = append(accounts, server.Account{Label: acct.Label, Token: acct.Token, Address: acct.Address})
		logger.Info("api account configured",
			logging.MaskField("label", acct.Label),
			logging.MaskField("address", acct.Address),
			slog.String("token_hint", logging.TokenHint(acct.Token)))
	}
	opts := []server.Option{server.WithLogger(logger)}
	if history != nil {
		opts = append(opts, server.WithHistory(history))
	}
	if hub != nil {
		opts = append(opts, server.WithStream(hub))
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		CertFile:      cfg.TLS.CertPath,
		KeyFile:       cfg.TLS.KeyPath,
		Accounts:      accounts,
		RateLimit: server.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		ShutdownTimeout: cfg.ShutdownTimeout.Duration,
	}, proc, opts...)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
