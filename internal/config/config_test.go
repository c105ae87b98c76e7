package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FEED_TYPE", "mastodon")
	t.Setenv("MASTODON_API_BASE_URL", "https://school.social")
	t.Setenv("MASTODON_ACCESS_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "galleon", cfg.Economy.CurrencyName)
	assert.EqualValues(t, 3, cfg.Economy.GachaPrice)
	assert.EqualValues(t, 6, cfg.Economy.AttendanceReward)
	assert.Equal(t, "repeatable", cfg.Economy.AttendancePolicy)
	assert.Equal(t, []string{"inventory", "bag"}, cfg.Keywords.Inventory)
	assert.Equal(t, "acquired", cfg.Keywords.AcquisitionMarker)
	assert.Equal(t, 2*time.Minute, cfg.Reconnect.MaxInterval)
	assert.Equal(t, 20, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "account", cfg.IdentityMode)
	assert.Equal(t, "Asia/Seoul", cfg.Schedule.Location().String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FEED_TYPE", "telegram")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_BROADCAST_CHAT", "-1001")
	t.Setenv("KEYWORD_GACHA", "gacha, draw")
	t.Setenv("ATTENDANCE_POLICY", "daily")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.EqualValues(t, -1001, cfg.Feed.TelegramBroadcastChat)
	assert.Equal(t, []string{"gacha", "draw"}, Aliases(cfg.Keywords.Gacha))
	assert.Equal(t, "daily", cfg.Economy.AttendancePolicy)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("FEED_TYPE", "mastodon")
	t.Setenv("MASTODON_API_BASE_URL", "")
	t.Setenv("MASTODON_ACCESS_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTODON_ACCESS_TOKEN is required")
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	t.Setenv("FEED_TYPE", "telegram")
	t.Setenv("BOT_TOKEN", "x")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("IDENTITY_MODE", "guess")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "IDENTITY_MODE")
}

func TestLoadSeedIgnoresFeedSettings(t *testing.T) {
	t.Setenv("FEED_TYPE", "mastodon")
	t.Setenv("MASTODON_ACCESS_TOKEN", "")
	t.Setenv("STORE_DSN", "/tmp/seed.db")
	t.Setenv("CACHE_TYPE", "redis")

	cfg, err := LoadSeed()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/seed.db", cfg.Store.DSN)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
}
