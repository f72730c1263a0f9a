package config

import (
	"fmt"
	"os"
	"time"

	prommodel "github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration, loaded from YAML.
// Durations use the Prometheus notation ("5m", "15s").
type Config struct {
	Graph      GraphConfig      `yaml:"graph"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Centrality CentralityConfig `yaml:"centrality"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Hubble     HubbleConfig     `yaml:"hubble"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type GraphConfig struct {
	TTL           prommodel.Duration `yaml:"ttl"`
	PruneInterval prommodel.Duration `yaml:"prune_interval"`
	Shards        int                `yaml:"shards"`
}

type IngestConfig struct {
	QueueSize    int `yaml:"queue_size"`
	LagThreshold int `yaml:"lag_threshold"`
}

type CentralityConfig struct {
	ShiftK        float64 `yaml:"shift_k"`
	HistoryLength int     `yaml:"history_length"`
	MinHistory    int     `yaml:"min_history"`
}

type ClusterConfig struct {
	Epsilon   float64 `yaml:"epsilon"`
	MinPoints int     `yaml:"min_points"`
}

type ScoringConfig struct {
	AnalysisInterval prommodel.Duration `yaml:"analysis_interval"`
	MinGraphSize     int                `yaml:"min_graph_size"`
	SignalWeights    map[string]float64 `yaml:"signal_weights"`
}

type AlertingConfig struct {
	Cooldown         prommodel.Duration `yaml:"cooldown"`
	HistorySize      int                `yaml:"history_size"`
	SubscriberBuffer int                `yaml:"subscriber_buffer"`
	Channels         ChannelsConfig     `yaml:"channels"`
	Telegram         TelegramConfig     `yaml:"telegram"`
	Redis            RedisConfig        `yaml:"redis"`
}

type ChannelsConfig struct {
	Log      bool `yaml:"log"`
	Telegram bool `yaml:"telegram"`
	Redis    bool `yaml:"redis"`
}

type TelegramConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChatID    string `yaml:"chat_id"`
	ParseMode string `yaml:"parse_mode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type APIConfig struct {
	Listen           string             `yaml:"listen"`
	SnapshotInterval prommodel.Duration `yaml:"snapshot_interval"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type HubbleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the engine's built-in configuration: 5 minute TTL pruned
// every TTL/2, 15 second analysis cadence, DBSCAN eps 0.3 / minPts 3.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			TTL:           prommodel.Duration(5 * time.Minute),
			PruneInterval: 0, // derived as TTL/2 when unset
			Shards:        32,
		},
		Ingest: IngestConfig{
			QueueSize:    4096,
			LagThreshold: 0, // derived as 75% of queue size when unset
		},
		Centrality: CentralityConfig{
			ShiftK:        3.0,
			HistoryLength: 8,
			MinHistory:    3,
		},
		Cluster: ClusterConfig{
			Epsilon:   0.3,
			MinPoints: 3,
		},
		Scoring: ScoringConfig{
			AnalysisInterval: prommodel.Duration(15 * time.Second),
			MinGraphSize:     5,
			SignalWeights:    map[string]float64{},
		},
		Alerting: AlertingConfig{
			Cooldown:         0, // derived as one analysis interval when unset
			HistorySize:      1000,
			SubscriberBuffer: 64,
			Channels:         ChannelsConfig{Log: true},
			Redis:            RedisConfig{Addr: "localhost:6379", Channel: "netgraph:alerts"},
		},
		API: APIConfig{
			Listen:           ":5001",
			SnapshotInterval: prommodel.Duration(5 * time.Second),
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
		Hubble: HubbleConfig{
			Server: "localhost:4245",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate fills derived values and rejects settings the pipeline cannot
// run with.
func (c *Config) Validate() error {
	if c.Graph.TTL <= 0 {
		return fmt.Errorf("graph.ttl must be positive")
	}
	if c.Graph.PruneInterval <= 0 {
		// Pruning at half the TTL bounds worst-case staleness to 1.5x TTL.
		c.Graph.PruneInterval = c.Graph.TTL / 2
	}
	if c.Graph.Shards <= 0 {
		c.Graph.Shards = 32
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive")
	}
	if c.Ingest.LagThreshold <= 0 || c.Ingest.LagThreshold > c.Ingest.QueueSize {
		c.Ingest.LagThreshold = c.Ingest.QueueSize * 3 / 4
	}
	if c.Centrality.ShiftK <= 0 {
		return fmt.Errorf("centrality.shift_k must be positive")
	}
	if c.Centrality.HistoryLength < c.Centrality.MinHistory {
		return fmt.Errorf("centrality.history_length %d shorter than min_history %d", c.Centrality.HistoryLength, c.Centrality.MinHistory)
	}
	if c.Cluster.Epsilon <= 0 {
		return fmt.Errorf("cluster.epsilon must be positive")
	}
	if c.Cluster.MinPoints < 1 {
		return fmt.Errorf("cluster.min_points must be at least 1")
	}
	if c.Scoring.AnalysisInterval <= 0 {
		return fmt.Errorf("scoring.analysis_interval must be positive")
	}
	for name, w := range c.Scoring.SignalWeights {
		if w < 0 {
			return fmt.Errorf("signal_weights[%s] must not be negative", name)
		}
	}
	if c.Alerting.Cooldown <= 0 {
		c.Alerting.Cooldown = c.Scoring.AnalysisInterval
	}
	if c.Alerting.HistorySize <= 0 {
		c.Alerting.HistorySize = 1000
	}
	if c.Alerting.SubscriberBuffer <= 0 {
		c.Alerting.SubscriberBuffer = 64
	}
	return nil
}
