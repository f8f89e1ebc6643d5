package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pmehra7/gridflow/archive"
	"github.com/pmehra7/gridflow/config"
	"github.com/pmehra7/gridflow/logging"
	"github.com/pmehra7/gridflow/observability"
	"github.com/pmehra7/gridflow/store"
	"github.com/pmehra7/gridflow/worker"
)

func main() {
	common := config.LoadCommon()
	logging.Init(logging.Config{Level: common.LogLevel, JSONOutput: common.LogJSON})
	workerID := config.WorkerID()
	logger := logging.WithWorkerID(workerID)

	st, err := store.NewRedisStore(common.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Str("url", common.RedisURL).Msg("State store unreachable")
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()

	metricsAddr := config.Getenv("METRICS_ADDR", ":9200")
	go func() {
		if err := observability.ServeMetrics(ctx, metricsAddr); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
			cancel()
		}
	}()

	cfg := worker.DefaultConfig(workerID)
	cfg.HeartbeatTTL = config.GetenvSeconds("HB_TTL_SEC", cfg.HeartbeatTTL)
	cfg.ClaimTimeout = config.GetenvSeconds("CLAIM_TIMEOUT_SEC", cfg.ClaimTimeout)
	cfg.CostRatePerSec = config.GetenvFloat("COST_RATE_USD_PER_SEC", cfg.CostRatePerSec)

	var sink worker.ResultSink
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pg, err := archive.NewPostgresArchive(ctx, dbURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Result archive unreachable")
		}
		defer pg.Close()
		sink = pg
		logger.Info().Msg("Result archive enabled")
	}

	w := worker.New(st, worker.NewRegistry(), cfg, sink)
	w.Run(ctx)
}
