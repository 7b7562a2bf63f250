package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	ServerPort int
	AppEnv     string
	LogLevel   string

	DatabaseDriver      string // "sqlite" or "postgres"
	DatabaseURL         string
	DBMaxOpenConns      int
	DBMaxIdleConns      int
	DBConnMaxLifetime   time.Duration
	MaintenanceSchedule string // cron expression, empty disables maintenance

	JWTSecret  string
	TokenTTL   time.Duration
	BCryptCost int

	RedisAddr     string // empty disables the note list cache
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	AuthRatePerMinute  int
	AuthRateBurst      int
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 5000)
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_url", "./keeper.db")
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", "30m")
	v.SetDefault("maintenance_schedule", "@daily")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "168h")
	v.SetDefault("bcrypt_cost", 10)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", "5m")

	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("max_body_bytes", 20<<20)
	v.SetDefault("auth_rate_per_minute", 20)
	v.SetDefault("auth_rate_burst", 10)
}

// Load reads configuration from defaults, an optional config file and
// environment variables, in increasing order of precedence. configFile may
// be empty, in which case CONFIG_FILE is consulted.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile == "" {
		configFile = v.GetString("config_file")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		ServerPort: v.GetInt("port"),
		AppEnv:     v.GetString("app_env"),
		LogLevel:   v.GetString("log_level"),

		DatabaseDriver:      strings.ToLower(v.GetString("database_driver")),
		DatabaseURL:         v.GetString("database_url"),
		DBMaxOpenConns:      v.GetInt("db_max_open_conns"),
		DBMaxIdleConns:      v.GetInt("db_max_idle_conns"),
		DBConnMaxLifetime:   v.GetDuration("db_conn_max_lifetime"),
		MaintenanceSchedule: v.GetString("maintenance_schedule"),

		JWTSecret:  v.GetString("jwt_secret"),
		TokenTTL:   v.GetDuration("token_ttl"),
		BCryptCost: v.GetInt("bcrypt_cost"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		CacheTTL:      v.GetDuration("cache_ttl"),

		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
		MaxBodyBytes:       v.GetInt64("max_body_bytes"),
		AuthRatePerMinute:  v.GetInt("auth_rate_per_minute"),
		AuthRateBurst:      v.GetInt("auth_rate_burst"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid PORT %d", c.ServerPort)
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
