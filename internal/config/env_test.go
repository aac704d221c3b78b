package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("COLLECTION_SERVICE_MAX_BODY_SIZE", "2M")
	t.Setenv("COLLECTION_SERVICE_CACHE_OWNER_TTL", "PT2H")
	t.Setenv("COLLECTION_SERVICE_HISTORY_MAX_PAGE_SIZE", "500")
	t.Setenv("COLLECTION_SERVICE_CORS_ENABLED", "true")
	t.Setenv("COLLECTION_SERVICE_TRACING_SAMPLE_RATIO", "0.5")
	t.Setenv("COLLECTION_SERVICE_API_KEYS_AGENT", "k1, k2")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, int64(2*1024*1024), cfg.MaxBodySize)
	require.Equal(t, 2*time.Hour, cfg.CacheOwnerTTL)
	require.Equal(t, 500, cfg.HistoryMaxPageSize)
	require.True(t, cfg.CORSEnabled)
	require.Equal(t, 0.5, cfg.TracingSampleRatio)
	require.Equal(t, map[string]string{"k1": "agent", "k2": "agent"}, cfg.APIKeys)
}

func TestApplyEnv_RejectsDefaultPageLargerThanMax(t *testing.T) {
	t.Setenv("COLLECTION_SERVICE_HISTORY_DEFAULT_PAGE_SIZE", "200")
	t.Setenv("COLLECTION_SERVICE_HISTORY_MAX_PAGE_SIZE", "100")

	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnv())
}

func TestApplyEnv_InvalidBool(t *testing.T) {
	t.Setenv("COLLECTION_SERVICE_DB_MIGRATE_AT_START", "maybe")
	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnv())
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("PT1H30M")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	d, err = parseDuration("45s")
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, d)

	_, err = parseDuration("P1D")
	require.Error(t, err)
}

func TestParseMemorySize(t *testing.T) {
	n, err := parseMemorySize("512k")
	require.NoError(t, err)
	require.Equal(t, int64(512*1024), n)

	_, err = parseMemorySize("-1")
	require.Error(t, err)
}
