// Command workqd runs the work-queue server: it loads configuration,
// wires the logger, the optional event publisher, and the lifecycle
// engine, then accepts connections until told to stop.
package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rmkadzi/workq/internal/engine"
	"github.com/rmkadzi/workq/internal/events"
	"github.com/rmkadzi/workq/internal/logging"
	"github.com/rmkadzi/workq/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logging.New(logging.DefaultConfig())
	logging.SetDefault(log)
	defer log.Sync()

	log.Info("starting workqd", "version", engine.Version)

	pub := events.NewPublisher(&events.ProducerConfig{
		Brokers:      cfg.Events.Brokers,
		Topic:        cfg.Events.Topic,
		BatchSize:    cfg.Events.BatchSize,
		BatchTimeout: cfg.Events.BatchTimeout,
		Compression:  cfg.Events.Compression,
		Async:        cfg.Events.Async,
		MaxAttempts:  cfg.Events.MaxAttempts,
		RequiredAcks: cfg.Events.RequiredAcks,
	}, log)
	defer pub.Close()
	if len(cfg.Events.Brokers) > 0 {
		log.Info("event publisher configured", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	eng := engine.New(engine.Config{
		URGENTThreshold: cfg.Server.URGENTThreshold,
		ReadyCapacity:   cfg.Heap.ReadyCapacity,
		DelayCapacity:   cfg.Heap.DelayCapacity,
		MaxConnections:  cfg.Server.MaxConnections,
	}, pub, log)
	defer eng.Stop()

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to listen", "addr", addr, "err", err)
		os.Exit(1)
	}
	defer ln.Close()
	log.Info("listening", "addr", addr, "max_connections", cfg.Server.MaxConnections)

	go func() {
		if err := eng.Serve(ln); err != nil {
			log.Error("accept loop stopped", "err", err)
		}
	}()

	go logStatsPeriodically(eng, log, cfg.Server.StatsLogInterval)

	sigCh := make(chan os.Signal, 1)
	if cfg.Server.DrainOnSIGUSR1 {
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	} else {
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	draining := false
	for sig := range sigCh {
		if sig == syscall.SIGUSR1 {
			draining = !draining
			eng.SetDrain(draining)
			log.Info("toggled drain mode via SIGUSR1", "draining", draining)
			continue
		}
		log.Info("shutting down", "signal", sig.String())
		return
	}
}

func logStatsPeriodically(eng *engine.Engine, log *logging.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		log.Info("stats", "report", eng.GlobalStats())
	}
}
