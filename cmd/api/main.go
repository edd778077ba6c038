package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/blessandsoul/glow-server/internal/adapter/cache"
	"github.com/blessandsoul/glow-server/internal/adapter/repo"
	"github.com/blessandsoul/glow-server/internal/branding"
	"github.com/blessandsoul/glow-server/internal/http/handlers"
	"github.com/blessandsoul/glow-server/internal/http/httpapi"
	"github.com/blessandsoul/glow-server/internal/infra"
	"github.com/blessandsoul/glow-server/internal/infra/geoip"
	"github.com/blessandsoul/glow-server/internal/middleware"
	"github.com/blessandsoul/glow-server/internal/notify"
	"github.com/blessandsoul/glow-server/internal/orchestrator"
	"github.com/blessandsoul/glow-server/internal/prompt"
	"github.com/blessandsoul/glow-server/internal/storage"
	"github.com/blessandsoul/glow-server/internal/transform"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := repo.EnsureSchema(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	geoResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var countryLookup middleware.CountryLookup
	if geoResolver != nil {
		defer geoResolver.Close()
		countryLookup = geoResolver.CountryCode
	}

	jobs := repo.NewJobRepository(dbpool)
	ledger := repo.NewCreditLedger(dbpool)
	quota := cache.NewQuotaTracker(rdb, cfg.DailyQuotaLimit)
	guests := cache.NewGuestGate(rdb, cfg.GuestTrialTTL)

	transformer := transform.NewClient(transform.Options{
		APIKey:     cfg.TransformerAPIKey,
		BaseURL:    cfg.TransformerBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.TransformerTimeout},
		Logger:     logger,
	})

	orch := orchestrator.New(orchestrator.Options{
		Mode:           cfg.BillingMode,
		Costs:          orchestrator.DefaultCostTable(),
		Jobs:           jobs,
		Ledger:         ledger,
		Quota:          quota,
		Guests:         guests,
		Store:          fileStore,
		Prompts:        prompt.NewResolver(),
		Transformer:    transformer,
		Notifier:       notify.NewScheduler(logger),
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	app := &handlers.App{
		Config:   cfg,
		Logger:   logger,
		Orch:     orch,
		Batch:    orchestrator.NewBatchCoordinator(orch),
		Jobs:     jobs,
		Ledger:   ledger,
		Quota:    quota,
		Composer: branding.NewComposer(fileStore, logger),
	}

	router := httpapi.NewRouter(app, cfg, logger, countryLookup)
	server := infra.NewHTTPServer(cfg, router)

	runCtx, cancelRun := context.WithCancel(ctx)
	go orch.Run(runCtx)

	go func() {
		logger.Info().Str("billing_mode", string(cfg.BillingMode)).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Let in-flight transformations deliver their outcome, then drain the
	// reconciler before exiting.
	orch.Wait()
	cancelRun()
	logger.Info().Msg("server stopped")
}
