// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort         = 8080
	DefaultAdminAddr    = ":9090"
	DefaultWorkers      = 8
	DefaultSpawnTimeout = 30 * time.Second
	DefaultReconcile    = 5 * time.Minute
	DefaultLogFile      = "logs.txt"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`

	Server ServerConfig `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`

	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`

	Workers int `yaml:"workers"`

	Admission AdmissionConfig `yaml:"admission"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Logging LoggingConfig `yaml:"logging"`
}

// TelegramConfig configures the parent bot and the platform client shared by
// every child instance.
type TelegramConfig struct {
	BotToken    string  `yaml:"bot_token"`
	APIEndpoint string  `yaml:"api_endpoint"`
	AdminIDs    []int64 `yaml:"admin_ids"`
	SourceURL   string  `yaml:"source_url"`
	PollTimeout int     `yaml:"poll_timeout"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	AdminAddr string `yaml:"admin_addr"`
}

type AdmissionConfig struct {
	SpawnTimeout       time.Duration `yaml:"-"`
	ReconcileInterval  time.Duration `yaml:"-"`
	MaxConcurrentSpawn int           `yaml:"max_concurrent_spawns"`
	RecoverOnStart     bool          `yaml:"recover_on_start"`

	SpawnTimeoutRaw      string `yaml:"spawn_timeout"`
	ReconcileIntervalRaw string `yaml:"reconcile_interval"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = DefaultPort
	cfg.Server.AdminAddr = DefaultAdminAddr
	cfg.Database.Driver = "memory"
	cfg.RabbitMQ.Queue = "tenant_events"
	cfg.Workers = DefaultWorkers
	cfg.Telegram.PollTimeout = 30
	cfg.Admission.SpawnTimeout = DefaultSpawnTimeout
	cfg.Admission.ReconcileInterval = DefaultReconcile
	cfg.Admission.RecoverOnStart = true
	cfg.Logging.Level = "info"
	cfg.Logging.File = DefaultLogFile
	return cfg
}

// LoadConfig reads the YAML file at path on top of Default. A missing file is
// not an error. ${VAR} references in the file are expanded, and the PORT and
// BOT_TOKEN environment variables override the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" if unset.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	return nil
}

func parseDurations(cfg *Config) error {
	var err error

	if cfg.Admission.SpawnTimeoutRaw != "" {
		cfg.Admission.SpawnTimeout, err = time.ParseDuration(cfg.Admission.SpawnTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing spawn_timeout %q: %w", cfg.Admission.SpawnTimeoutRaw, err)
		}
	}

	if cfg.Admission.ReconcileIntervalRaw != "" {
		cfg.Admission.ReconcileInterval, err = time.ParseDuration(cfg.Admission.ReconcileIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reconcile_interval %q: %w", cfg.Admission.ReconcileIntervalRaw, err)
		}
	}

	return nil
}

// Validate returns the first problem found in c.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required (or set BOT_TOKEN)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Admission.SpawnTimeout <= 0 {
		return fmt.Errorf("admission.spawn_timeout must be positive")
	}
	if c.Admission.MaxConcurrentSpawn < 0 {
		return fmt.Errorf("admission.max_concurrent_spawns must not be negative")
	}
	return nil
}

// IsAdmin reports whether userID may use operator-only commands.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HealthAddr is the listen address of the liveness endpoint.
func (c *Config) HealthAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
