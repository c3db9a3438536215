package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/gateway"
	"storyreel/internal/http/handlers"
	httpapi "storyreel/internal/http/httpapi"
	"storyreel/internal/infra"
	"storyreel/internal/infra/geoip"
	"storyreel/internal/middleware"
	"storyreel/internal/poller"
	"storyreel/internal/workflow"
)

func main() {
	// Muat .env (opsional)
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
	sqlRunner := infra.NewSQLRunner(dbpool, logger)

	countryResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var countryLookup middleware.CountryLookup
	if countryResolver != nil {
		countryLookup = countryResolver.CountryCode
	}

	users := repo.NewUserRepository(sqlRunner)
	ledger := repo.NewCreditLedger(sqlRunner)
	scenes := repo.NewSceneRepository(sqlRunner)

	gw := gateway.NewHTTPGateway(cfg, logger)
	jobPoller := poller.New(cfg, gw, scenes, logger)
	engine := workflow.New(scenes, ledger, gw, jobPoller, workflow.CostsFromConfig(cfg), logger)

	// Re-adopt renders left pending by a previous run.
	pending, err := scenes.PendingVideoJobs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("loading pending video jobs failed")
	}
	for _, job := range pending {
		if err := jobPoller.Watch(job.SceneID, job.Epoch, job.RequestID, job.SubmittedAt); err != nil {
			logger.Error().Err(err).Str("scene_id", job.SceneID).Msg("re-adopting video job failed")
		}
	}
	if len(pending) > 0 {
		logger.Info().Int("jobs", len(pending)).Msg("re-adopted pending video jobs")
	}

	app := &handlers.App{
		Logger:   logger,
		Config:   cfg,
		Workflow: engine,
		Ledger:   ledger,
		Users:    users,
		Progress: jobPoller,
	}
	router := httpapi.NewRouter(app, countryLookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
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
	pollerCtx, cancelPoller := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPoller()
	if err := jobPoller.Shutdown(pollerCtx); err != nil {
		logger.Error().Err(err).Msg("poller did not drain in time")
	}
	logger.Info().Msg("server stopped")
}
