package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresAPIKeys(t *testing.T) {
	t.Setenv("QUOTAPOOL_API_KEYS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUOTAPOOL_API_KEYS")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("QUOTAPOOL_API_KEYS", "key-one")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"key-one"}, cfg.APIKeys)
	assert.Equal(t, 10000, cfg.DailyQuotaLimit)
	assert.Equal(t, 8000, cfg.WarnThreshold)
	assert.Equal(t, 9500, cfg.EmergencyThreshold)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "quotapool.db", cfg.DBPath)
	assert.Equal(t, 1, cfg.ProbeCost)
	assert.NotEmpty(t, cfg.ProbeURL)
}

func TestLoad_KeyListParsing(t *testing.T) {
	t.Setenv("QUOTAPOOL_API_KEYS", " key-one , key-two ,,key-three ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"key-one", "key-two", "key-three"}, cfg.APIKeys)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QUOTAPOOL_API_KEYS", "key-one")
	t.Setenv("QUOTAPOOL_DAILY_QUOTA_LIMIT", "20000")
	t.Setenv("QUOTAPOOL_WARN_THRESHOLD", "15000")
	t.Setenv("QUOTAPOOL_EMERGENCY_THRESHOLD", "19000")
	t.Setenv("QUOTAPOOL_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("QUOTAPOOL_DB_PATH", "/data/pool.db")
	t.Setenv("QUOTAPOOL_PROBE_COST", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20000, cfg.DailyQuotaLimit)
	assert.Equal(t, 15000, cfg.WarnThreshold)
	assert.Equal(t, 19000, cfg.EmergencyThreshold)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/data/pool.db", cfg.DBPath)
	assert.Equal(t, 100, cfg.ProbeCost)
}

func TestLoad_InvalidInteger(t *testing.T) {
	t.Setenv("QUOTAPOOL_API_KEYS", "key-one")
	t.Setenv("QUOTAPOOL_DAILY_QUOTA_LIMIT", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUOTAPOOL_DAILY_QUOTA_LIMIT")
}

func TestLoad_ThresholdOrdering(t *testing.T) {
	t.Run("warn above emergency", func(t *testing.T) {
		t.Setenv("QUOTAPOOL_API_KEYS", "key-one")
		t.Setenv("QUOTAPOOL_WARN_THRESHOLD", "9600")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "emergency")
	})

	t.Run("emergency above limit", func(t *testing.T) {
		t.Setenv("QUOTAPOOL_API_KEYS", "key-one")
		t.Setenv("QUOTAPOOL_EMERGENCY_THRESHOLD", "10500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "daily quota limit")
	})

	t.Run("warn not positive", func(t *testing.T) {
		t.Setenv("QUOTAPOOL_API_KEYS", "key-one")
		t.Setenv("QUOTAPOOL_WARN_THRESHOLD", "0")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "positive")
	})
}
