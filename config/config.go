package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. DILUTION_BACKEND_URL.
const EnvPrefix = "DILUTION"

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Endpoints  EndpointsConfig  `yaml:"endpoints"`
	Gate       GateConfig       `yaml:"gate"`
	Robot      RobotConfig      `yaml:"robot"`
	Session    SessionConfig    `yaml:"session"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" envconfig:"PORT"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// LogConfig holds the logger configuration.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

// EndpointsConfig holds the base URLs of the three external collaborators.
type EndpointsConfig struct {
	BackendURL string `yaml:"backend_url" envconfig:"BACKEND_URL"`
	FaceIDURL  string `yaml:"face_id_url" envconfig:"FACE_ID_URL"`
	RobotURL   string `yaml:"robot_url" envconfig:"ROBOT_URL"`
	// TimeoutSeconds bounds every outbound request.
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// GateConfig holds the verification gate timings.
type GateConfig struct {
	PollIntervalMillis int           `yaml:"poll_interval_ms"`
	DismissDelayMillis int           `yaml:"dismiss_delay_ms"`
	PollInterval       time.Duration `yaml:"-"`
	DismissDelay       time.Duration `yaml:"-"`
}

// RobotConfig holds the robot panel configuration.
type RobotConfig struct {
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	// TerminalStatuses are the pi/unity statuses that end a task.
	TerminalStatuses []string `yaml:"terminal_statuses"`
}

// SessionConfig holds session lifetime configuration.
type SessionConfig struct {
	TTLMinutes         int           `yaml:"ttl_minutes"`
	TTL                time.Duration `yaml:"-"`
	ConsoleIdleMinutes int           `yaml:"console_idle_minutes"`
	ConsoleIdle        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn" envconfig:"DATABASE_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" envconfig:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path, then applies a .env file
// (if present) and DILUTION_* environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// FromEnv builds a configuration from defaults and the environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for _, target := range []any{&cfg.Server, &cfg.Log, &cfg.Endpoints, &cfg.Database, &cfg.Push} {
		if err := envconfig.Process(EnvPrefix, target); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Endpoints.TimeoutSeconds <= 0 {
		cfg.Endpoints.TimeoutSeconds = 30
	}
	cfg.Endpoints.Timeout = time.Duration(cfg.Endpoints.TimeoutSeconds) * time.Second

	// The gate and panel intervals are constants of the workflow; config only
	// exists so tests and slow devices can stretch them.
	if cfg.Gate.PollIntervalMillis <= 0 {
		cfg.Gate.PollIntervalMillis = 1000
	}
	if cfg.Gate.DismissDelayMillis <= 0 {
		cfg.Gate.DismissDelayMillis = 1500
	}
	cfg.Gate.PollInterval = time.Duration(cfg.Gate.PollIntervalMillis) * time.Millisecond
	cfg.Gate.DismissDelay = time.Duration(cfg.Gate.DismissDelayMillis) * time.Millisecond

	if cfg.Robot.PollIntervalSeconds <= 0 {
		cfg.Robot.PollIntervalSeconds = 5
	}
	cfg.Robot.PollInterval = time.Duration(cfg.Robot.PollIntervalSeconds) * time.Second
	if len(cfg.Robot.TerminalStatuses) == 0 {
		cfg.Robot.TerminalStatuses = []string{"FINISHED", "ERROR", "BROKEN"}
	}

	if cfg.Session.TTLMinutes <= 0 {
		cfg.Session.TTLMinutes = 12 * 60
	}
	cfg.Session.TTL = time.Duration(cfg.Session.TTLMinutes) * time.Minute
	if cfg.Session.ConsoleIdleMinutes <= 0 {
		cfg.Session.ConsoleIdleMinutes = 30
	}
	cfg.Session.ConsoleIdle = time.Duration(cfg.Session.ConsoleIdleMinutes) * time.Minute

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "sqlite:dilution.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		zap.S().Infof("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
