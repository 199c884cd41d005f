// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default quota levels, in abstract units per key per UTC day. They mirror
// the Google API default of 10000 daily units.
const (
	defaultDailyQuotaLimit    = 10000
	defaultWarnThreshold      = 8000
	defaultEmergencyThreshold = 9500
)

// defaultProbeURL is an inexpensive list endpoint used to verify that a key
// is accepted; a probe call costs one quota unit.
const defaultProbeURL = "https://www.googleapis.com/youtube/v3/i18nLanguages?part=snippet"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	APIKeys            []string
	DailyQuotaLimit    int
	WarnThreshold      int
	EmergencyThreshold int
	ListenAddr         string
	DBPath             string
	ProbeURL           string
	ProbeCost          int
}

// Load reads configuration from environment variables and returns a validated Config.
// QUOTAPOOL_API_KEYS is required: a comma-separated ordered list of key secrets,
// assigned pool indexes in list order. Optional variables with defaults:
// QUOTAPOOL_DAILY_QUOTA_LIMIT (10000), QUOTAPOOL_WARN_THRESHOLD (8000),
// QUOTAPOOL_EMERGENCY_THRESHOLD (9500), QUOTAPOOL_LISTEN_ADDR (127.0.0.1:8080),
// QUOTAPOOL_DB_PATH (quotapool.db), QUOTAPOOL_PROBE_URL, QUOTAPOOL_PROBE_COST (1).
func Load() (*Config, error) {
	var keys []string
	for _, key := range strings.Split(os.Getenv("QUOTAPOOL_API_KEYS"), ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("QUOTAPOOL_API_KEYS must list at least one key")
	}

	limit, err := intEnv("QUOTAPOOL_DAILY_QUOTA_LIMIT", defaultDailyQuotaLimit)
	if err != nil {
		return nil, err
	}
	warn, err := intEnv("QUOTAPOOL_WARN_THRESHOLD", defaultWarnThreshold)
	if err != nil {
		return nil, err
	}
	emergency, err := intEnv("QUOTAPOOL_EMERGENCY_THRESHOLD", defaultEmergencyThreshold)
	if err != nil {
		return nil, err
	}
	probeCost, err := intEnv("QUOTAPOOL_PROBE_COST", 1)
	if err != nil {
		return nil, err
	}

	if warn <= 0 {
		return nil, fmt.Errorf("QUOTAPOOL_WARN_THRESHOLD must be positive, got %d", warn)
	}
	if warn > emergency {
		return nil, fmt.Errorf("warn threshold %d must not exceed emergency threshold %d", warn, emergency)
	}
	if emergency > limit {
		return nil, fmt.Errorf("emergency threshold %d must not exceed daily quota limit %d", emergency, limit)
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("QUOTAPOOL_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "quotapool.db"
	if v, ok := os.LookupEnv("QUOTAPOOL_DB_PATH"); ok {
		dbPath = v
	}

	probeURL := defaultProbeURL
	if v, ok := os.LookupEnv("QUOTAPOOL_PROBE_URL"); ok {
		probeURL = v
	}

	return &Config{
		APIKeys:            keys,
		DailyQuotaLimit:    limit,
		WarnThreshold:      warn,
		EmergencyThreshold: emergency,
		ListenAddr:         listenAddr,
		DBPath:             dbPath,
		ProbeURL:           probeURL,
		ProbeCost:          probeCost,
	}, nil
}

// intEnv reads an integer environment variable, falling back to def when unset.
func intEnv(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}
	return parsed, nil
}
