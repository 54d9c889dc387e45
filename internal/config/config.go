package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. BIRSE_API_KEY.
const EnvPrefix = "BIRSE"

// Config holds the CLI configuration loaded from files, flags and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	TimeoutSeconds int64         `mapstructure:"timeout_seconds"`
	Timeout        time.Duration `mapstructure:"-"`

	ShopID             string        `mapstructure:"shop_id"`
	ShopDomain         string        `mapstructure:"shop_domain"`
	ShopTimeoutSeconds int64         `mapstructure:"shop_timeout_seconds"`
	ShopTimeout        time.Duration `mapstructure:"-"`

	PublishersFile string `mapstructure:"publishers_file"`

	LedgerType             string        `mapstructure:"ledger_type"`
	LedgerPath             string        `mapstructure:"ledger_path"`
	LedgerRetentionSeconds int64         `mapstructure:"ledger_retention_seconds"`
	LedgerCleanupSeconds   int64         `mapstructure:"ledger_cleanup_interval_seconds"`
	LedgerRetention        time.Duration `mapstructure:"-"`
	LedgerCleanupInterval  time.Duration `mapstructure:"-"`
}

// Load reads configuration through v, which may already carry bound flags and
// a config file. A nil v uses a fresh viper instance.
func Load(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	if v == nil {
		v = viper.New()
	}

	v.SetDefault("app_name", "birse")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://birse-image-insight.biggo.com/api")
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("shop_id", "")
	v.SetDefault("shop_domain", "")
	v.SetDefault("shop_timeout_seconds", 0) // no client-side timeout
	v.SetDefault("publishers_file", "")
	v.SetDefault("ledger_type", "bbolt")
	v.SetDefault("ledger_path", "./data/uploads.db")
	v.SetDefault("ledger_retention_seconds", int64((90*24*time.Hour)/time.Second))
	v.SetDefault("ledger_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid timeout_seconds (must be positive seconds)")
	}
	cfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second

	if cfg.ShopTimeoutSeconds < 0 {
		return nil, fmt.Errorf("invalid shop_timeout_seconds (must be zero or positive seconds)")
	}
	cfg.ShopTimeout = time.Duration(cfg.ShopTimeoutSeconds) * time.Second

	if cfg.LedgerRetentionSeconds <= 0 {
		return nil, fmt.Errorf("invalid ledger_retention_seconds (must be positive seconds)")
	}
	if cfg.LedgerCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid ledger_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.LedgerRetention = time.Duration(cfg.LedgerRetentionSeconds) * time.Second
	cfg.LedgerCleanupInterval = time.Duration(cfg.LedgerCleanupSeconds) * time.Second

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.ShopID = strings.TrimSpace(cfg.ShopID)
	cfg.ShopDomain = strings.TrimSpace(cfg.ShopDomain)

	return &cfg, nil
}

// HasAPI reports whether the API-key client can be built.
func (c *Config) HasAPI() bool { return c != nil && c.APIKey != "" }

// HasShop reports whether the shop client can be built.
func (c *Config) HasShop() bool { return c != nil && c.ShopID != "" && c.ShopDomain != "" }

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.APIKey != "" {
		out.APIKey = "***"
	}
	return out
}
