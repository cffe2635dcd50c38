package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"endpoint_url": "http://localhost:8890/sparql", "seeds": ["http://ex.org/a"]}`))
	require.NoError(t, err)

	assert.Equal(t, backend.Default, cfg.Backend)
	assert.Equal(t, 2, cfg.MaxLevels)
	assert.Equal(t, 16, cfg.ConcurrentWorkers)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 0.8, cfg.TrainRatio)
	assert.Equal(t, 0.5, cfg.FailureFraction())
	assert.Equal(t, uint64(1), cfg.SplitSeed)
	assert.Equal(t, "dataset.db", cfg.DBPath)
	assert.Equal(t, "metrics.json", cfg.MetricsPath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, time.Second, cfg.RetryDelay())
	assert.Empty(t, cfg.ProgressAddr)
}

func TestLoadConfig_ExplicitZeroKept(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"endpoint_url": "http://x/sparql", "max_failure_fraction": 0, "retry_delay_ms": 0}`))
	require.NoError(t, err)

	assert.Zero(t, cfg.FailureFraction())
	assert.Zero(t, cfg.RetryDelay())
}

func TestLoadConfig_BackendEndpoint(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"backend": "wikidata", "seed_pattern": "?item wdt:P31 wd:Q5 ."}`))
	require.NoError(t, err)

	b, err := backend.Lookup(cfg.Backend, cfg.BackendOptions())
	require.NoError(t, err)
	assert.Equal(t, backend.WikidataEndpoint, cfg.Endpoint(b))

	cfg, err = LoadConfig(writeConfig(t, `{"backend": "dbpedia", "dbpedia_domain": "dbpedia.org"}`))
	require.NoError(t, err)
	b, err = backend.Lookup(cfg.Backend, cfg.BackendOptions())
	require.NoError(t, err)
	assert.Equal(t, "http://dbpedia.org/sparql", cfg.Endpoint(b))
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing endpoint": `{}`,
		"unknown backend":  `{"backend": "freebase", "endpoint_url": "http://x/sparql"}`,
		"ratio too high":   `{"endpoint_url": "http://x/sparql", "train_ratio": 1.0}`,
		"negative ratio":   `{"endpoint_url": "http://x/sparql", "train_ratio": -0.2}`,
		"no workers":       `{"endpoint_url": "http://x/sparql", "concurrent_workers": -1}`,
		"no levels":        `{"endpoint_url": "http://x/sparql", "max_levels": -3}`,
		"no retries":       `{"endpoint_url": "http://x/sparql", "retry_attempts": -1}`,
		"short timeout":    `{"endpoint_url": "http://x/sparql", "request_timeout_ms": 10}`,
		"failure fraction": `{"endpoint_url": "http://x/sparql", "max_failure_fraction": 2}`,
		"negative delay":   `{"endpoint_url": "http://x/sparql", "retry_delay_ms": -5}`,
		"unknown field":    `{"endpoint_url": "http://x/sparql", "max_depth": 4}`,
		"bad json":         `{"endpoint_url": `,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "failed to open config file")
}
