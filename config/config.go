package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Lockbot     PeripheralConfig `yaml:"lockbot"`
	Fingerprint PeripheralConfig `yaml:"fingerprint"`
	Secrets     SecretsConfig    `yaml:"secrets"`
	Tokens      TokensConfig     `yaml:"tokens"`
	Mattermost  MattermostConfig `yaml:"mattermost"`
	KelderAPI   KelderAPIConfig  `yaml:"kelderapi"`
	Alert       AlertConfig      `yaml:"alert"`
	Database    DatabaseConfig   `yaml:"database"`
	Push        PushConfig       `yaml:"push"`
	WorkerPool  WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                 int     `yaml:"port"`
	PublicURL            string  `yaml:"public_url"`
	RateLimitPerSec      float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst       int     `yaml:"rate_limit_burst"`
	SpaceAPICacheSeconds int     `yaml:"spaceapi_cache_seconds"`
}

// PeripheralConfig describes how to reach the lock controller or the fingerprint sensor.
type PeripheralConfig struct {
	URL            string        `yaml:"url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// SecretsConfig holds the shared HMAC keys. Prefer supplying them through the environment.
type SecretsConfig struct {
	DownKey        string `yaml:"down_key"`
	UpKey          string `yaml:"up_key"`
	FingerprintKey string `yaml:"fingerprint_key"`
}

// TokensConfig holds the Mattermost slash-command tokens.
type TokensConfig struct {
	Door        string `yaml:"door"`
	Fingerprint string `yaml:"fingerprint"`
}

// MattermostConfig holds the incoming webhooks used for notifications.
type MattermostConfig struct {
	DoorkeeperWebhook string `yaml:"doorkeeper_webhook"`
	DebugWebhook      string `yaml:"debug_webhook"`
}

// KelderAPIConfig describes the secondary system doorkeeper events are relayed to.
type KelderAPIConfig struct {
	DoorkeeperURL  string        `yaml:"doorkeeper_url"`
	Key            string        `yaml:"key"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// AlertConfig controls the alert throttler.
type AlertConfig struct {
	IntervalMinutes int           `yaml:"interval_minutes"`
	Interval        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications. Empty keys disable web push.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// maxPeripheralTimeout bounds every call to the lock or the sensor.
const maxPeripheralTimeout = 5 * time.Second

// Load reads the configuration from the given path.
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

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv overlays secrets from the environment on top of the file values.
func (cfg *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Secrets.DownKey, "MATTERMORE_DOWN_KEY")
	overlay(&cfg.Secrets.UpKey, "MATTERMORE_UP_KEY")
	overlay(&cfg.Secrets.FingerprintKey, "MATTERMORE_FINGERPRINT_KEY")
	overlay(&cfg.KelderAPI.Key, "MATTERMORE_KELDERAPI_KEY")
	overlay(&cfg.Database.DSN, "MATTERMORE_DATABASE_DSN")
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
	if cfg.Server.SpaceAPICacheSeconds <= 0 {
		cfg.Server.SpaceAPICacheSeconds = 5
	}

	cfg.Lockbot.Timeout = peripheralTimeout(cfg.Lockbot.TimeoutSeconds, 3)
	cfg.Fingerprint.Timeout = peripheralTimeout(cfg.Fingerprint.TimeoutSeconds, 5)

	// The sensor shares the lock's down key unless it was given its own.
	if cfg.Secrets.FingerprintKey == "" {
		cfg.Secrets.FingerprintKey = cfg.Secrets.DownKey
	}

	if cfg.KelderAPI.TimeoutSeconds <= 0 {
		cfg.KelderAPI.TimeoutSeconds = 3
	}
	cfg.KelderAPI.Timeout = time.Duration(cfg.KelderAPI.TimeoutSeconds) * time.Second

	if cfg.Alert.IntervalMinutes <= 0 {
		cfg.Alert.IntervalMinutes = 60
	}
	cfg.Alert.Interval = time.Duration(cfg.Alert.IntervalMinutes) * time.Minute

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

func peripheralTimeout(seconds, def int) time.Duration {
	if seconds <= 0 {
		seconds = def
	}
	d := time.Duration(seconds) * time.Second
	if d > maxPeripheralTimeout {
		log.Printf("peripheral timeout of %s exceeds %s; clamping", d, maxPeripheralTimeout)
		d = maxPeripheralTimeout
	}
	return d
}
