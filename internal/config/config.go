package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all settings, read from the environment.
type Config struct {
	Feed         FeedConfig
	Store        StoreConfig
	Cache        CacheConfig
	Economy      EconomyConfig
	Keywords     KeywordConfig
	Schedule     ScheduleConfig
	Reconnect    ReconnectConfig
	Log          LogConfig
	OpsPort      int    `envconfig:"OPS_PORT" default:"8080"`
	IdentityMode string `envconfig:"IDENTITY_MODE" default:"account"`
}

// FeedConfig selects and authenticates the social feed.
type FeedConfig struct {
	Type string `envconfig:"FEED_TYPE" default:"mastodon"`

	MastodonServer      string `envconfig:"MASTODON_API_BASE_URL"`
	MastodonAccessToken string `envconfig:"MASTODON_ACCESS_TOKEN"`
	MastodonVisibility  string `envconfig:"MASTODON_VISIBILITY" default:"public"`

	TelegramToken         string `envconfig:"BOT_TOKEN"`
	TelegramBroadcastChat int64  `envconfig:"TELEGRAM_BROADCAST_CHAT"`
}

// StoreConfig selects the row store.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite3"`
	DSN    string `envconfig:"STORE_DSN" default:"./galleon.db"`
}

// CacheConfig controls the catalog cache.
type CacheConfig struct {
	Type          string        `envconfig:"CACHE_TYPE" default:"memory"`
	TTL           time.Duration `envconfig:"CACHE_TTL" default:"1m"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
}

// EconomyConfig holds prices and rewards.
type EconomyConfig struct {
	CurrencyName     string `envconfig:"CURRENCY_NAME" default:"galleon"`
	GachaPrice       int64  `envconfig:"GACHA_PRICE" default:"3"`
	AttendanceReward int64  `envconfig:"ATTENDANCE_REWARD" default:"6"`
	AttendancePolicy string `envconfig:"ATTENDANCE_POLICY" default:"repeatable"`
}

// KeywordConfig holds comma-separated command aliases.
type KeywordConfig struct {
	Inventory         []string `envconfig:"KEYWORD_INVENTORY" default:"inventory,bag"`
	Dice              []string `envconfig:"KEYWORD_DICE" default:"1d100"`
	Gacha             []string `envconfig:"KEYWORD_GACHA" default:"gacha"`
	Odds              []string `envconfig:"KEYWORD_ODDS" default:"odds,rates"`
	Shop              []string `envconfig:"KEYWORD_SHOP" default:"shop"`
	Purchase          []string `envconfig:"KEYWORD_PURCHASE" default:"buy"`
	Attendance        []string `envconfig:"KEYWORD_ATTENDANCE" default:"attendance"`
	AcquisitionMarker string   `envconfig:"ACQUISITION_MARKER" default:"acquired"`
}

// ScheduleConfig holds the attendance clock.
type ScheduleConfig struct {
	Timezone      string `envconfig:"TIMEZONE" default:"Asia/Seoul"`
	OpenAt        string `envconfig:"ATTENDANCE_OPEN_AT" default:"07:00"`
	CurfewAt      string `envconfig:"CURFEW_AT" default:"00:00"`
	OpenMessage   string `envconfig:"ATTENDANCE_MESSAGE"`
	CurfewMessage string `envconfig:"CURFEW_MESSAGE"`
}

// ReconnectConfig bounds the feed reconnect loop.
type ReconnectConfig struct {
	MaxInterval time.Duration `envconfig:"RECONNECT_MAX_INTERVAL" default:"2m"`
	MaxAttempts int           `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"20"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE"`
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SeedConfig is the subset of settings the seed command needs.
type SeedConfig struct {
	Store StoreConfig
	Cache CacheConfig
}

// LoadSeed reads only the store and cache settings, for commands that never
// touch the feed.
func LoadSeed() (*SeedConfig, error) {
	_ = godotenv.Load()

	var cfg SeedConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load seed config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Feed.Type {
	case "mastodon":
		if c.Feed.MastodonServer == "" {
			errs = append(errs, errors.New("MASTODON_API_BASE_URL is required"))
		}
		if c.Feed.MastodonAccessToken == "" {
			errs = append(errs, errors.New("MASTODON_ACCESS_TOKEN is required"))
		}
	case "telegram":
		if c.Feed.TelegramToken == "" {
			errs = append(errs, errors.New("BOT_TOKEN is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("FEED_TYPE %q: want mastodon or telegram", c.Feed.Type))
	}

	switch c.Store.Driver {
	case "sqlite3", "mysql":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q: want sqlite3 or mysql", c.Store.Driver))
	}

	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("CACHE_TYPE %q: want memory, redis or none", c.Cache.Type))
	}

	switch c.Economy.AttendancePolicy {
	case "repeatable", "daily":
	default:
		errs = append(errs, fmt.Errorf("ATTENDANCE_POLICY %q: want repeatable or daily", c.Economy.AttendancePolicy))
	}

	switch c.IdentityMode {
	case "account", "legacy":
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_MODE %q: want account or legacy", c.IdentityMode))
	}

	if c.Economy.GachaPrice <= 0 || c.Economy.AttendanceReward <= 0 {
		errs = append(errs, errors.New("GACHA_PRICE and ATTENDANCE_REWARD must be positive"))
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the schedule timezone.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Aliases trims blanks out of a keyword list.
func Aliases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
