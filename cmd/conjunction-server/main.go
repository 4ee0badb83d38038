package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/api"
	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/config"
	"github.com/signalsfoundry/conjunction-engine/internal/ingest"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/maneuver"
	"github.com/signalsfoundry/conjunction-engine/internal/notify"
	"github.com/signalsfoundry/conjunction-engine/internal/observability"
	"github.com/signalsfoundry/conjunction-engine/internal/screening"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file; CONJ_ env vars override either way")
	addr := flag.String("addr", "", "Override the HTTP listen address")
	metricsAddr := flag.String("metrics-addr", "", "Override the Prometheus /metrics address")
	seedPath := flag.String("seed", "", "Optional YAML seed file loaded into the catalog on startup")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	log = logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	apiCollector, err := observability.NewAPICollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise API metrics", logging.Err(err))
		os.Exit(1)
	}
	screenCollector, err := observability.NewScreeningCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise screening metrics", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, apiCollector, log)

	store, err := catalog.Open(cfg.Catalog.DBPath, cfg.Screening.BatchRetention)
	if err != nil {
		log.Error(ctx, "failed to open catalog", logging.String("path", cfg.Catalog.DBPath), logging.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	if *seedPath != "" {
		seedCatalog(ctx, log, store, *seedPath)
	}
	if count, err := store.CountObjects(ctx); err == nil {
		apiCollector.SetCatalogObjects(count)
		log.Info(ctx, "catalog opened", logging.String("path", cfg.Catalog.DBPath), logging.Int("objects", count))
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.BotToken, cfg.Notify.ChatID)
		if err != nil {
			log.Error(ctx, "failed to initialise Telegram notifier", logging.Err(err))
			os.Exit(1)
		}
		notifier = tg
		log.Info(ctx, "Telegram alerts enabled",
			logging.Float64("score_threshold", cfg.Notify.ScoreThreshold))
	}

	fetcher := ingest.NewFetcher(ingest.FetcherOptions{
		BaseURL:   cfg.Fetch.BaseURL,
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout,
		Interval:  cfg.Fetch.Interval,
	}, log)

	screener := screening.NewService(store, log,
		screening.WithPruneRadius(cfg.Screening.PruneRadiusKm),
		screening.WithSaveThreshold(cfg.Screening.SaveThresholdKm),
		screening.WithAnalysisWindow(time.Duration(cfg.Screening.WindowHours*float64(time.Hour))),
		screening.WithWorkers(cfg.Screening.Workers),
		screening.WithMetrics(screenCollector),
		screening.WithNotifier(notifier, cfg.Notify.ScoreThreshold),
	)

	planner := maneuver.NewService(store, log,
		maneuver.WithTargetMiss(cfg.Maneuver.TargetMissKm),
		maneuver.WithDvBound(cfg.Maneuver.DvBoundKmS),
		maneuver.WithPenaltyWeight(cfg.Maneuver.PenaltyWeight),
		maneuver.WithLeadTime(cfg.Maneuver.LeadTime),
		maneuver.WithHomeCountry(cfg.Screening.HomeCountry),
		maneuver.WithMetrics(screenCollector),
	)

	server := api.NewServer(store, log,
		api.WithScreener(screener),
		api.WithPlanner(planner),
		api.WithFetcher(fetcher, cfg.Fetch.Groups),
		api.WithMetrics(apiCollector),
	)

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Info(ctx, "starting conjunction engine API", logging.String("addr", cfg.Server.Addr))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down conjunction engine")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "HTTP shutdown incomplete", logging.Err(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func serveMetrics(addr string, collector *observability.APICollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func seedCatalog(ctx context.Context, log logging.Logger, store *catalog.Store, path string) {
	objects, err := ingest.LoadSeed(path)
	if err != nil {
		log.Warn(ctx, "skipping seed load", logging.String("path", path), logging.Err(err))
		return
	}
	n, err := store.UpsertObjects(ctx, objects)
	if err != nil {
		log.Warn(ctx, "seed upsert failed", logging.String("path", path), logging.Err(err))
		return
	}
	log.Info(ctx, "seeded catalog", logging.String("path", path), logging.Int("objects", n))
}
