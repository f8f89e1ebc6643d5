package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pmehra7/gridflow/config"
	"github.com/pmehra7/gridflow/coordination"
	"github.com/pmehra7/gridflow/logging"
	"github.com/pmehra7/gridflow/observability"
	"github.com/pmehra7/gridflow/scheduler"
	"github.com/pmehra7/gridflow/store"
)

func main() {
	common := config.LoadCommon()
	logging.Init(logging.Config{Level: common.LogLevel, JSONOutput: common.LogJSON})
	logger := logging.WithComponent("scheduler-main")

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

	metricsAddr := config.Getenv("METRICS_ADDR", ":9100")
	go func() {
		if err := observability.ServeMetrics(ctx, metricsAddr); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
			cancel()
		}
	}()

	cfg := scheduler.DefaultConfig()
	cfg.Loop = config.GetenvSeconds("LOOP_SEC", cfg.Loop)
	cfg.HeartbeatStale = config.GetenvSeconds("HB_STALE_SEC", cfg.HeartbeatStale)
	sched := scheduler.New(st, cfg)

	if config.GetenvBool("REAPER_ENABLED", false) {
		interval := config.GetenvSeconds("REAPER_INTERVAL_SEC", 10*time.Second)
		reaper := coordination.NewReaper(st, interval, cfg.HeartbeatStale)
		go reaper.Run(ctx)
		logger.Info().Dur("interval", interval).Msg("Orphan reaper enabled")
	}

	if config.GetenvBool("LEADER_ELECTION", false) {
		host, _ := os.Hostname()
		gateID := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
		gate := coordination.NewLeaderGate(st, gateID, 15*time.Second)
		gate.RunWhileLeader(ctx, sched.Run)
		return
	}
	sched.Run(ctx)
}
