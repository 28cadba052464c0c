package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ratewatcher/internal/logging"
	"ratewatcher/internal/market"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	RateSource RateSourceConfig `mapstructure:"rate_source"`
	Users      UsersConfig      `mapstructure:"users"`
	Currencies []CurrencySeed   `mapstructure:"currencies"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig governs the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs ingestion cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// RateSourceConfig captures the upstream exchange-rate API.
type RateSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	BaseCurrency   string        `mapstructure:"base_currency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// UsersConfig points at the external user directory.
type UsersConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CurrencySeed declares one tracked currency.
type CurrencySeed struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
}

// AlertingConfig defines alert notification routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notification sink.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ratewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("rate_source.base_currency", "USD")
	v.SetDefault("rate_source.request_timeout", "10s")
	v.SetDefault("rate_source.user_agent", "ratewatcher/1.0")

	v.SetDefault("users.request_timeout", "5s")

	v.SetDefault("currencies", []map[string]string{
		{"code": "EUR", "name": "Euro"},
		{"code": "GBP", "name": "Pound Sterling"},
		{"code": "TRY", "name": "Turkish Lira"},
	})

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if len(c.Currencies) == 0 {
		return fmt.Errorf("at least one currency must be configured")
	}
	seen := make(map[string]bool, len(c.Currencies))
	for _, cur := range c.Currencies {
		code := strings.ToUpper(strings.TrimSpace(cur.Code))
		if code == "" {
			return fmt.Errorf("currency code cannot be empty")
		}
		if seen[code] {
			return fmt.Errorf("duplicate currency code %s", code)
		}
		seen[code] = true
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// SeedCurrencies normalises the configured currency list to domain values.
func (c *Config) SeedCurrencies() []market.Currency {
	out := make([]market.Currency, 0, len(c.Currencies))
	for _, cur := range c.Currencies {
		out = append(out, market.Currency{
			Code: strings.ToUpper(strings.TrimSpace(cur.Code)),
			Name: cur.Name,
		})
	}
	return out
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
