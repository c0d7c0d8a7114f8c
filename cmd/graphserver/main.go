// Command graphserver runs the dataflow computation engine: a bipartite
// graph of topics and agents wired by a text configuration and driven by
// external numeric inputs over HTTP, Kafka, and NATS.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/zazi341/dataflow-graph-server/internal/engine"
	"github.com/zazi341/dataflow-graph-server/internal/ingest/kafka"
	"github.com/zazi341/dataflow-graph-server/internal/ingest/nats"
	"github.com/zazi341/dataflow-graph-server/internal/logging"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/platform"
	"github.com/zazi341/dataflow-graph-server/internal/settings"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
	"github.com/zazi341/dataflow-graph-server/internal/transport"
)

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLogger := logging.New(logging.Config{Level: "info", Format: "json"})

	maxProcs := runtime.GOMAXPROCS(0)
	bootLogger.Info().Int("gomaxprocs", maxProcs).Msg("automaxprocs applied")

	cfg, err := settings.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load settings")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.InitGlobal(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogFields(logger)

	if cfg.MinAgentCapacity == 0 {
		memLimit, _ := platform.MemoryLimit()
		cfg.MinAgentCapacity = platform.DefaultAgentCapacityFloor(memLimit)
		logger.Info().Int("min_agent_capacity", cfg.MinAgentCapacity).Msg("derived agent capacity floor from container memory")
	}

	m := metrics.New()
	reg := topic.NewRegistry()
	eng := engine.New(reg, logging.Component(logger, "engine"), m)
	monitor := platform.NewMonitor(logging.Component(logger, "platform"))

	if cfg.ConfigPath != "" {
		if err := eng.LoadConfigFile(cfg.ConfigPath); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ConfigPath).Msg("failed to load initial configuration")
		}
		logger.Info().Str("path", cfg.ConfigPath).Msg("loaded initial configuration")
	}

	srv := transport.New(eng, m, monitor, logging.Component(logger, "transport"), transport.Config{
		ConfigDir:      cfg.ConfigDir,
		MaxPublishRate: cfg.MaxPublishRate,
	})
	httpServer := srv.HTTPServer(cfg.HTTPAddr)

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}

	var kafkaBridge *kafka.Bridge
	if cfg.KafkaEnabled {
		kafkaBridge, err = kafka.New(kafka.Config{
			Brokers:       splitList(cfg.KafkaBrokers),
			ConsumerGroup: cfg.KafkaConsumerGroup,
			Topics:        splitList(cfg.KafkaTopics),
			MaxRate:       cfg.KafkaMaxRate,
		}, reg, m, logging.Component(logger, "kafka-bridge"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka ingestion bridge")
		}
		kafkaBridge.Start()
	}

	var natsBridge *nats.Bridge
	if cfg.NatsEnabled {
		natsBridge, err = nats.New(nats.Config{
			URL:     cfg.NatsURL,
			Subject: cfg.NatsSubject,
			MaxRate: cfg.NatsMaxRate,
		}, reg, m, logging.Component(logger, "nats-bridge"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create nats ingestion bridge")
		}
		if err := natsBridge.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start nats ingestion bridge")
		}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Panic(logger, r, "http server goroutine panicked", nil)
			}
		}()
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Panic(logger, r, "metrics server goroutine panicked", nil)
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	queueMetricsCtx, stopQueueMetrics := context.WithCancel(context.Background())
	defer stopQueueMetrics()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Panic(logger, r, "queue metrics poll goroutine panicked", nil)
			}
		}()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				eng.ReportQueueMetrics()
			case <-queueMetricsCtx.Done():
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
	stopQueueMetrics()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if kafkaBridge != nil {
		kafkaBridge.Stop()
	}
	if natsBridge != nil {
		natsBridge.Stop()
	}
	if err := eng.Close(); err != nil {
		logger.Error().Err(err).Msg("engine shutdown error")
	}
}
