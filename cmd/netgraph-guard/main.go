package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netgraph-guard/internal/alert"
	"netgraph-guard/internal/analyzer"
	"netgraph-guard/internal/api"
	"netgraph-guard/internal/config"
	"netgraph-guard/internal/graph"
	"netgraph-guard/internal/ingest"
	"netgraph-guard/internal/logging"
	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/pipeline"
	"netgraph-guard/internal/scoring"

	"github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "configs/netgraph.yaml", "Configuration file path (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			fmt.Printf("Invalid default configuration: %v\n", err)
			os.Exit(1)
		}
	}

	logger := logging.NewLogger(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	m := metrics.New()
	exporter := metrics.NewExporter(cfg.Metrics.Listen, m, logger)
	go func() {
		if err := exporter.Start(ctx); err != nil {
			logger.Errorf("Metrics exporter error: %v", err)
		}
	}()

	store := graph.NewStore(time.Duration(cfg.Graph.TTL), cfg.Graph.Shards, logger)
	ingestor := ingest.New(store, cfg.Ingest.QueueSize, cfg.Ingest.LagThreshold, m, logger)
	centrality := analyzer.NewCentralityAnalyzer(cfg.Centrality.ShiftK, cfg.Centrality.HistoryLength, cfg.Centrality.MinHistory, logger)
	cluster := analyzer.NewClusterAnalyzer(cfg.Cluster.Epsilon, cfg.Cluster.MinPoints, logger)
	ensemble := scoring.NewEnsemble(cfg.Scoring.SignalWeights, m, logger)

	broadcaster := alert.NewBroadcaster(cfg.Alerting.SubscriberBuffer, m, logger)
	emitter := alert.NewEmitter(time.Duration(cfg.Alerting.Cooldown), cfg.Alerting.HistorySize, broadcaster, m, logger)
	registerNotifiers(emitter, cfg, logger)

	pipe := pipeline.New(store, ingestor, centrality, cluster, ensemble, emitter,
		time.Duration(cfg.Scoring.AnalysisInterval), time.Duration(cfg.Graph.PruneInterval),
		cfg.Scoring.MinGraphSize, m, logger)

	if cfg.Hubble.Enabled {
		source, err := ingest.NewHubbleSource(cfg.Hubble.Server, logger)
		if err != nil {
			logger.Errorf("Hubble relay unavailable, running without a flow source: %v", err)
		} else {
			defer source.Close()
			go func() {
				if err := source.Stream(ctx, ingestor); err != nil && err != context.Canceled {
					logger.Errorf("Hubble flow stream failed: %v", err)
				}
			}()
		}
	}

	handlers := api.NewHandlers(store, pipe, emitter, broadcaster, time.Duration(cfg.API.SnapshotInterval), logger)
	server := api.NewServer(cfg.API.Listen, handlers, logger)
	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Errorf("API server error: %v", err)
			cancel()
		}
	}()

	logger.Infof("netgraph-guard started: graph TTL %s, analysis every %s", cfg.Graph.TTL, cfg.Scoring.AnalysisInterval)
	pipe.Run(ctx)
}

func registerNotifiers(emitter *alert.Emitter, cfg *config.Config, logger *logrus.Logger) {
	if cfg.Alerting.Channels.Log {
		emitter.RegisterNotifier(alert.NewLogNotifier(logger))
	}

	if cfg.Alerting.Channels.Telegram {
		emitter.RegisterNotifier(alert.NewTelegramNotifier(
			cfg.Alerting.Telegram.BotToken,
			cfg.Alerting.Telegram.ChatID,
			cfg.Alerting.Telegram.ParseMode,
			logger,
		))
	}

	if cfg.Alerting.Channels.Redis {
		notifier, err := alert.NewRedisNotifier(
			cfg.Alerting.Redis.Addr,
			cfg.Alerting.Redis.Password,
			cfg.Alerting.Redis.DB,
			cfg.Alerting.Redis.Channel,
			logger,
		)
		if err != nil {
			logger.Errorf("Redis notifier disabled: %v", err)
			return
		}
		emitter.RegisterNotifier(notifier)
	}
}
