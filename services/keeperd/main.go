package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakevault/config"
	"stakevault/core"
	"stakevault/core/genesis"
	"stakevault/native/oracle"
	"stakevault/observability/logging"
	telemetry "stakevault/observability/otel"
	"stakevault/services/indexer"
	"stakevault/services/keeper"
	keeperdcfg "stakevault/services/keeperd/config"
	"stakevault/services/keeperd/server"
	"stakevault/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/keeperd/config.yaml", "path to keeperd configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		log.Fatalf("keeperd: %v", err)
	}
}

func run(cfgPath string) error {
	cfg, err := keeperdcfg.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	node := config.Default()
	if cfg.NodeConfig != "" {
		if node, err = config.Load(cfg.NodeConfig); err != nil {
			return fmt.Errorf("load node config: %w", err)
		}
	}
	if cfg.DataDir != "" {
		node.DataDir = cfg.DataDir
	}

	logger := logging.SetupWith(logging.Options{
		Service:   "keeperd",
		Env:       node.Environment,
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	headers := cfg.Telemetry.Headers
	if len(headers) == 0 {
		headers = telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "keeperd",
		Environment: node.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	vaultParams, err := node.VaultParams()
	if err != nil {
		return err
	}
	stakingParams, err := node.StakingParams()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(node.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	spec, err := node.GenesisSpec(filepath.Dir(cfg.NodeConfig))
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	rt, err := core.NewRuntime(db, core.Options{
		TokenSymbol:   spec.Token.Symbol,
		VaultParams:   vaultParams,
		StakingParams: stakingParams,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if err := ensureInstalled(ctx, rt, spec, logger); err != nil {
		return err
	}

	idx, err := indexer.Open(cfg.IndexDSN, logger)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()
	rt.Subscribe(idx)

	owner, err := genesis.ResolveAddress(cfg.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	k, err := keeper.New(rt, keeper.Config{
		Owner:        owner,
		DelegateSpec: cfg.Schedule.Delegate,
		SettleSpec:   cfg.Schedule.Settle,
		Timeout:      cfg.Schedule.Timeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	k.Start()
	defer k.Stop()

	srv := server.New(server.Config{
		Ledger: rt,
		Events: idx,
		Oracle: oracle.NewStaticOracle(nil),
		Logger: logger,
	})
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(srv.Handler(), "keeperd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("keeperd listening",
			slog.String("address", cfg.ListenAddress),
			slog.Int("jobs", k.Jobs()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	logger.Info("keeperd stopped")
	return nil
}

func ensureInstalled(ctx context.Context, rt *core.Runtime, spec *genesis.Spec, logger *slog.Logger) error {
	installed, err := rt.Installed()
	if err != nil {
		return err
	}
	if installed {
		return nil
	}
	resolved, err := spec.Resolve()
	if err != nil {
		return fmt.Errorf("resolve genesis: %w", err)
	}
	receipt, err := rt.Install(ctx, resolved)
	if err != nil {
		return fmt.Errorf("install genesis: %w", err)
	}
	logger.Info("genesis installed", slog.String("receipt", receipt.ID.String()))
	return nil
}
