package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pmehra7/gridflow/api"
	"github.com/pmehra7/gridflow/config"
	"github.com/pmehra7/gridflow/logging"
	"github.com/pmehra7/gridflow/store"
)

func main() {
	common := config.LoadCommon()
	logging.Init(logging.Config{Level: common.LogLevel, JSONOutput: common.LogJSON})
	logger := logging.WithComponent("api-main")

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

	cfg := api.DefaultConfig()
	cfg.ListenAddr = config.Getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DefaultDeadlineSec = config.GetenvInt("SLO_DEADLINE_SEC", cfg.DefaultDeadlineSec)
	cfg.SubmitRate = config.GetenvFloat("SUBMIT_RATE", cfg.SubmitRate)
	cfg.SubmitBurst = config.GetenvInt("SUBMIT_BURST", cfg.SubmitBurst)
	cfg.HeartbeatStale = config.GetenvSeconds("HB_STALE_SEC", cfg.HeartbeatStale)

	server := api.NewServer(st, cfg)
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("API server failed")
	}
}
