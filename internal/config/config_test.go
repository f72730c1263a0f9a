package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsValidateAndDerive(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	require.Equal(t, 5*time.Minute, time.Duration(cfg.Graph.TTL))
	require.Equal(t, 150*time.Second, time.Duration(cfg.Graph.PruneInterval))
	require.Equal(t, 15*time.Second, time.Duration(cfg.Scoring.AnalysisInterval))
	require.Equal(t, 3072, cfg.Ingest.LagThreshold)
	require.Equal(t, 15*time.Second, time.Duration(cfg.Alerting.Cooldown))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
graph:
  ttl: 10m
scoring:
  analysis_interval: 30s
  signal_weights:
    centrality_shift: 0.8
logging:
  level: "DEBUG"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 10*time.Minute, time.Duration(cfg.Graph.TTL))
	require.Equal(t, 5*time.Minute, time.Duration(cfg.Graph.PruneInterval))
	require.Equal(t, 30*time.Second, time.Duration(cfg.Scoring.AnalysisInterval))
	require.Equal(t, 30*time.Second, time.Duration(cfg.Alerting.Cooldown))
	require.Equal(t, 0.8, cfg.Scoring.SignalWeights["centrality_shift"])
	require.Equal(t, "DEBUG", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	require.Equal(t, 0.3, cfg.Cluster.Epsilon)
	require.Equal(t, ":5001", cfg.API.Listen)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero ttl", "graph:\n  ttl: 0s\n"},
		{"negative epsilon", "cluster:\n  epsilon: -0.1\n"},
		{"history shorter than min", "centrality:\n  history_length: 2\n  min_history: 3\n"},
		{"negative weight", "scoring:\n  signal_weights:\n    centrality_shift: -1\n"},
		{"bad duration", "graph:\n  ttl: \"not-a-duration\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
