package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"spread_go/internal/api"
	"spread_go/internal/app"
	"spread_go/internal/domain"
	"spread_go/internal/engine"
	"spread_go/internal/event"
	"spread_go/internal/infra"
	"spread_go/internal/infra/alerting"
	"spread_go/internal/infra/cache"
	"spread_go/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code so deferred cleanup runs before exit.
func run(args []string) int {
	flags := flag.NewFlagSet("spread", flag.ContinueOnError)
	configPath := flags.String("config", "configs/config.yaml", "path to the YAML or TOML configuration file")
	pprofAddr := flags.String("pprof", "localhost:6060", "pprof listen address, empty to disable")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// 1. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return 1
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Signal channel and consumer
	policy, err := event.ParseOverflowPolicy(cfg.Channel.Overflow)
	if err != nil {
		slog.Error("❌ Invalid channel policy", slog.Any("error", err))
		return 1
	}
	signals := event.NewChannel(cfg.Channel.Capacity, policy)
	slog.Info("Signal channel ready", slog.Int("capacity", signals.Cap()), slog.String("policy", string(signals.Policy())))

	var sinks []service.Sink
	if bootstrap.Storage != nil {
		sinks = append(sinks, bootstrap.Storage)
	}
	if cfg.Redis.Enabled {
		redisSink := cache.NewRedisSink(cfg.Redis)
		defer redisSink.Close()
		if err := redisSink.Ping(ctx); err != nil {
			slog.Warn("Redis unreachable, batches will be retried per delivery", slog.Any("error", err))
		}
		sinks = append(sinks, redisSink)
	}
	if cfg.Alerting.Enabled {
		if alerter := alerting.NewAlerter(cfg.Alerting); alerter != nil {
			sinks = append(sinks, alerter)
		} else {
			slog.Warn("Alerting enabled without any webhook URL")
		}
	}

	// Background writers (consumer, catalog sync) finish before the sinks close
	var background sync.WaitGroup
	defer func() {
		stop()
		background.Wait()
	}()

	consumer := service.NewSignalService(signals, sinks...)
	background.Add(1)
	go func() {
		defer background.Done()
		consumer.Run(ctx)
	}()
	slog.InfoContext(ctx, "✅ Signal consumer started", slog.Int("sinks", len(sinks)+1))

	// 5. Scanner
	opts := bootstrap.Options()
	opts.OnCatalogs = func(catalogs map[string][]domain.Instrument) {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := bootstrap.SyncCatalogs(ctx, catalogs); err != nil {
				slog.Warn("Catalog sync incomplete", slog.Any("error", err))
			}
		}()
	}
	status := infra.NewStatusReporter(os.Stdout, slog.Default(), cfg.Scanner.StatusInterval(), cfg.Scanner.StatusTopN)
	scanner := engine.NewScanner(bootstrap.Providers, engine.NewPriceTable(), signals, status, opts)

	// 6. Status API
	if cfg.API.BindAddress != "" {
		registry := infra.NewMetricsRegistry(infra.GlobalMetrics)
		server := api.NewServer(cfg.API, scanner, consumer, infra.GlobalMetrics, infra.MetricsHandler(registry)).
			WithQueue(signals)
		if bootstrap.Storage != nil {
			server.WithStore(bootstrap.Storage)
		}
		go func() {
			if err := server.Run(ctx); err != nil {
				slog.Error("API server failed", slog.Any("error", err))
			}
		}()
	}

	slog.InfoContext(ctx, "✨ Spread scanner fully operational. Press Ctrl+C to exit.",
		slog.Int("venues", len(bootstrap.Providers)))

	if err := scanner.Run(ctx); err != nil {
		slog.Error("❌ Scanner stopped", slog.Any("error", err))
		return 1
	}

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	return 0
}
