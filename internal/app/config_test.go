package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("STOCK_SNAPSHOT_TTL", "45s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 30, cfg.RateLimitPerMinute)
	require.Equal(t, 45*time.Second, cfg.StockSnapshotTTL)
}

func TestNewLoggerHonoursEnvironment(t *testing.T) {
	require.NotNil(t, NewLogger(&Config{AppEnv: "production"}))
	require.NotNil(t, NewLogger(&Config{AppEnv: "development", LogFormat: "pretty"}))
}
