package conf

import (
	"fmt"
	"net"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// LogLevel: debug, info, warn, error
	LogLevel string `koanf:"log_level"`

	// Locale selects <locale_dir>/<locale>.json, layered over en
	Locale    string `koanf:"locale"`
	LocaleDir string `koanf:"locale_dir"`

	// StatHours is the trailing aggregation window
	StatHours int `koanf:"stat_hours"`

	// DateFormat is a Go time layout, used only for display
	DateFormat string `koanf:"date_format"`

	Schedule ScheduleConfig `koanf:"schedule"`
	Database DatabaseConfig `koanf:"database"`
	Feishu   FeishuConfig   `koanf:"feishu"`
	Reporter ReporterConfig `koanf:"reporter"`
	API      APIConfig      `koanf:"api"`
	Kafka    KafkaConfig    `koanf:"kafka"`

	// Guilds are reported in this order
	Guilds []GuildConfig `koanf:"guilds"`
}

// ScheduleConfig contains the default daily trigger
type ScheduleConfig struct {
	Timezone      string `koanf:"timezone"`
	OffsetMinutes int    `koanf:"offset_minutes"`
}

// DatabaseConfig contains the observation store settings
type DatabaseConfig struct {
	Driver         string `koanf:"driver"` // sqlite or pgx
	DSN            string `koanf:"dsn"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string `koanf:"app_id"`
	AppSecret string `koanf:"app_secret"`
}

// ReporterConfig contains message chunking and pacing
type ReporterConfig struct {
	ChunkSize      int `koanf:"chunk_size"`
	DelayMS        int `koanf:"delay_ms"`
	MaxClearPasses int `koanf:"max_clear_passes"`
}

// APIConfig contains the HTTP API settings; an empty Addr disables the API
type APIConfig struct {
	Addr      string `koanf:"addr"`
	AccessLog bool   `koanf:"access_log"` // Apache-style request log on stdout
}

// Loopback reports whether Addr only accepts local connections.
// An empty host (":9876") listens on every interface.
func (c APIConfig) Loopback() bool {
	host, _, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// KafkaConfig contains the run audit sink; no brokers disables it
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// GuildConfig is the per-guild (Feishu tenant) report configuration
type GuildConfig struct {
	ID         string           `koanf:"id"`
	Name       string           `koanf:"name"`
	Timezone   string           `koanf:"timezone"` // Falls back to schedule.timezone
	DailyStats DailyStatsConfig `koanf:"daily_stats"`
}

// DailyStatsConfig binds each category to its channel settings
type DailyStatsConfig struct {
	Shiny CategoryConfig `koanf:"shiny"`
	Hundo CategoryConfig `koanf:"hundo"`
	IV    CategoryConfig `koanf:"iv"`
}

// CategoryConfig contains one category's settings for a guild
type CategoryConfig struct {
	Enabled       bool     `koanf:"enabled"`
	ChannelID     string   `koanf:"channel_id"`
	ClearMessages bool     `koanf:"clear_messages"`
	MinimumIV     *float64 `koanf:"minimum_iv"` // Only used by iv
}

// New returns a Config with defaults
func New() *Config {
	return &Config{
		LogLevel:   "info",
		Locale:     "en",
		LocaleDir:  "locales",
		StatHours:  24,
		DateFormat: "2006/01/02",
		Schedule: ScheduleConfig{
			Timezone: "Local",
		},
		Database: DatabaseConfig{
			Driver:         "sqlite",
			DSN:            "data/observations.db",
			TimeoutSeconds: 30,
		},
		Reporter: ReporterConfig{
			ChunkSize:      usecase.DefaultChunkSize,
			DelayMS:        int(usecase.DefaultMessageDelay / time.Millisecond),
			MaxClearPasses: usecase.DefaultMaxClearPasses,
		},
		Kafka: KafkaConfig{
			Topic: "stats-report-runs",
		},
	}
}

// For returns the settings bound to a category
func (d *DailyStatsConfig) For(c domain.Category) (CategoryConfig, bool) {
	switch c {
	case domain.CategoryShiny:
		return d.Shiny, true
	case domain.CategoryHundo:
		return d.Hundo, true
	case domain.CategoryIV:
		return d.IV, true
	}
	return CategoryConfig{}, false
}

// Threshold resolves the quality threshold of a run.
// A negative or absent override falls back to minimum_iv, then to 100.
func (c CategoryConfig) Threshold(override *float64) float64 {
	if override != nil && *override >= 0 {
		return *override
	}
	if c.MinimumIV != nil && *c.MinimumIV >= 0 {
		return *c.MinimumIV
	}
	return domain.DefaultThreshold
}

// Guild returns the guild with the given id
func (c *Config) Guild(id string) (*GuildConfig, bool) {
	for i := range c.Guilds {
		if c.Guilds[i].ID == id {
			return &c.Guilds[i], true
		}
	}
	return nil, false
}

// GuildTimezone returns the effective timezone of a guild
func (c *Config) GuildTimezone(g *GuildConfig) string {
	if g.Timezone != "" {
		return g.Timezone
	}
	return c.Schedule.Timezone
}

// Timezones returns the distinct effective guild timezones in configuration order
func (c *Config) Timezones() []string {
	seen := make(map[string]bool)
	var out []string
	for i := range c.Guilds {
		tz := c.GuildTimezone(&c.Guilds[i])
		if !seen[tz] {
			seen[tz] = true
			out = append(out, tz)
		}
	}
	if len(out) == 0 {
		out = append(out, c.Schedule.Timezone)
	}
	return out
}

// StatWindow returns the aggregation window
func (c *Config) StatWindow() time.Duration {
	return time.Duration(c.StatHours) * time.Hour
}

// QueryTimeout returns the data source timeout
func (c *DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ToReporterConfig converts to the usecase reporter configuration
func (c *ReporterConfig) ToReporterConfig() usecase.ReporterConfig {
	return usecase.ReporterConfig{
		ChunkSize:      c.ChunkSize,
		Delay:          time.Duration(c.DelayMS) * time.Millisecond,
		MaxClearPasses: c.MaxClearPasses,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "feishu.app_id/feishu.app_secret", Message: "required"}
	}
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return &ConfigError{Field: "database.driver", Message: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
	}
	if c.Database.DSN == "" {
		return &ConfigError{Field: "database.dsn", Message: "required"}
	}
	if c.StatHours <= 0 {
		return &ConfigError{Field: "stat_hours", Message: "must be positive"}
	}
	if c.Reporter.ChunkSize <= 0 {
		return &ConfigError{Field: "reporter.chunk_size", Message: "must be positive"}
	}
	if c.Schedule.OffsetMinutes < 0 || c.Schedule.OffsetMinutes >= 24*60 {
		return &ConfigError{Field: "schedule.offset_minutes", Message: "must be within one day"}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return &ConfigError{Field: "schedule.timezone", Message: err.Error()}
	}

	seen := make(map[string]bool)
	for i, g := range c.Guilds {
		field := fmt.Sprintf("guilds[%d]", i)
		if g.ID == "" {
			return &ConfigError{Field: field + ".id", Message: "required"}
		}
		if seen[g.ID] {
			return &ConfigError{Field: field + ".id", Message: "duplicate guild " + g.ID}
		}
		seen[g.ID] = true
		if g.Timezone != "" {
			if _, err := time.LoadLocation(g.Timezone); err != nil {
				return &ConfigError{Field: field + ".timezone", Message: err.Error()}
			}
		}
		for _, cat := range domain.Categories {
			cc, _ := g.DailyStats.For(cat)
			if cc.Enabled && cc.ChannelID == "" {
				return &ConfigError{Field: field + ".daily_stats." + cat.String() + ".channel_id", Message: "required when enabled"}
			}
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
