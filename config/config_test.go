package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.Harvest.MinDelay)
	assert.Equal(t, 4, cfg.Harvest.MaxRetries)
	assert.Equal(t, 2.0, cfg.Harvest.BackoffBase)
	assert.Equal(t, 100, cfg.Harvest.MaxReviews)
	assert.Equal(t, DefaultBlockPhrases, cfg.Harvest.BlockPhrases)
	assert.Equal(t, 20, cfg.Session.MaxRequestsPerSession)
	assert.Equal(t, "http", cfg.Fetch.Engine)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HARVEST_MAX_RETRIES", "7")
	t.Setenv("HARVEST_MIN_DELAY", "250ms")
	t.Setenv("HARVEST_FETCHER", "browser")
	t.Setenv("HARVEST_BLOCK_PHRASES", "blocked, try again later ,")
	t.Setenv("HARVEST_HEADLESS", "false")

	cfg := Load()

	assert.Equal(t, 7, cfg.Harvest.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Harvest.MinDelay)
	assert.Equal(t, "browser", cfg.Fetch.Engine)
	assert.Equal(t, []string{"blocked", "try again later"}, cfg.Harvest.BlockPhrases)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HARVEST_MAX_RETRIES", "many")
	t.Setenv("HARVEST_FETCH_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 4, cfg.Harvest.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
}
