package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

type (
	// Config holds configuration settings for the timer service
	Config struct {
		// API Server
		APIHost        string `toml:"api_host"`
		APIPort        int    `toml:"api_port"`
		LogLevel       string `toml:"log_level"`
		MetricsEnabled bool   `toml:"metrics_enabled"`

		// Storage
		Store StoreConfig `toml:"store"`

		// Timers
		Timer TimerConfig `toml:"timer"`

		ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	}

	// StoreConfig selects and configures the persistence backend
	StoreConfig struct {
		Driver     string      `toml:"driver"`
		Redis      RedisConfig `toml:"redis"`
		SQLitePath string      `toml:"sqlite_path"`
	}

	// RedisConfig configures the Redis backend
	RedisConfig struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
	}

	// TimerConfig holds timer accounting settings, all in milliseconds
	TimerConfig struct {
		SweepInterval   int64 `toml:"sweep_interval"`
		Tolerance       int64 `toml:"tolerance"`
		DefaultDuration int64 `toml:"default_duration"`
	}
)

// Store drivers
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

const (
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0
	MaxRedisDB     = 15

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "taskquest"
	DefaultSQLitePath    = "data/taskquest.db"

	DefaultSweepInterval = api.Second
	DefaultTolerance     = api.DefaultCompletionTolerance
	DefaultTimerDuration = api.DefaultTimerDuration

	MaxSweepInterval   = api.Minute
	MaxTolerance       = api.Minute
	MaxTimerDuration   = 24 * api.Hour
	MaxShutdownTimeout = 10 * api.Minute

	defaultLogLevel = "info"
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidLogLevel        = errors.New("invalid log level")
	ErrInvalidStoreDriver     = errors.New("invalid store driver")
	ErrInvalidRedisAddr       = errors.New("redis address required")
	ErrInvalidSQLitePath      = errors.New("sqlite path required")
	ErrInvalidSweepInterval   = errors.New("sweep interval must be positive")
	ErrInvalidTolerance       = errors.New("tolerance cannot be negative")
	ErrInvalidTimerDuration   = errors.New("timer duration must be positive")
	ErrInvalidShutdownTimeout = errors.New(
		"shutdown timeout must be positive",
	)
	ErrToleranceTooLarge = errors.New(
		"tolerance must be smaller than the timer duration",
	)
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, the Redis store and timer accounting
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:  DefaultAPIPort,
		APIHost:  DefaultAPIHost,
		LogLevel: defaultLogLevel,
		Store: StoreConfig{
			Driver: DriverRedis,
			Redis: RedisConfig{
				Addr:   DefaultRedisEndpoint,
				DB:     DefaultRedisDB,
				Prefix: DefaultRedisPrefix,
			},
			SQLitePath: DefaultSQLitePath,
		},
		Timer: TimerConfig{
			SweepInterval:   DefaultSweepInterval,
			Tolerance:       DefaultTolerance,
			DefaultDuration: DefaultTimerDuration,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  true,
	}
}

// Load builds a configuration from defaults, then the file named by
// CONFIG_FILE if set, then the environment
func Load() (*Config, error) {
	cfg := NewDefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile overlays values from a TOML file. Keys absent from the file
// keep their current values
func (c *Config) LoadFromFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse config %s: unknown key %q",
			path, undecoded[0].String())
	}
	return nil
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	LoadRedisConfigFromEnv(&c.Store.Redis)

	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		c.Store.SQLitePath = path
	}
	if s := os.Getenv("METRICS_ENABLED"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED: %q", s)
		}
		c.MetricsEnabled = v
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"TIMER_SWEEP_INTERVAL", &c.Timer.SweepInterval, 0, MaxSweepInterval,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"TIMER_TOLERANCE", &c.Timer.Tolerance, -1, MaxTolerance,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"TIMER_DEFAULT_DURATION", &c.Timer.DefaultDuration, 0,
		MaxTimerDuration,
	); err != nil {
		return err
	}

	shutdown := c.ShutdownTimeout.Milliseconds()
	if err := loadEnvInt(
		"SHUTDOWN_TIMEOUT", &shutdown, 0, MaxShutdownTimeout,
	); err != nil {
		return err
	}
	c.ShutdownTimeout = time.Duration(shutdown) * time.Millisecond

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.LogLevel)
	}

	switch c.Store.Driver {
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return ErrInvalidRedisAddr
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return ErrInvalidSQLitePath
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStoreDriver, c.Store.Driver)
	}

	if c.Timer.SweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}

	if c.Timer.Tolerance < 0 {
		return ErrInvalidTolerance
	}

	if c.Timer.DefaultDuration <= 0 {
		return ErrInvalidTimerDuration
	}

	if c.Timer.Tolerance >= c.Timer.DefaultDuration {
		return fmt.Errorf("%w: %d >= %d", ErrToleranceTooLarge,
			c.Timer.Tolerance, c.Timer.DefaultDuration)
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// SweepInterval returns the sweep period as a time.Duration
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Timer.SweepInterval) * time.Millisecond
}

// LoadRedisConfigFromEnv loads Redis store configuration from environment
// variables
func LoadRedisConfigFromEnv(r *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		r.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		r.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil && db >= 0 && db <= MaxRedisDB {
			r.DB = db
		}
	}
	if envPrefix := os.Getenv("REDIS_PREFIX"); envPrefix != "" {
		r.Prefix = envPrefix
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
