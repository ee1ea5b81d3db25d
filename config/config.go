package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Reservation ReservationConfig `yaml:"reservation"`
	Mail        MailConfig        `yaml:"mail"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
// Push delivery is disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// MailConfig holds the SMTP settings used for reservation emails.
// Mail delivery is disabled when Host is empty.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// Password-gated routes get their own, tighter bucket per client.
	PasswordAttemptsPerMinute int `yaml:"password_attempts_per_minute"`
	PasswordAttemptBurst      int `yaml:"password_attempt_burst"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// MQTTConfig holds the hardware broker connection and topic layout.
type MQTTConfig struct {
	BrokerURL          string        `yaml:"broker_url"`
	ClientID           string        `yaml:"client_id"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	QoS                byte          `yaml:"qos"`
	Topics             TopicsConfig  `yaml:"topics"`
	ConnectTimeoutSecs int           `yaml:"connect_timeout_seconds"`
	ConnectTimeout     time.Duration `yaml:"-"`
	CommandTimeoutMs   int           `yaml:"command_timeout_ms"`
	CommandTimeout     time.Duration `yaml:"-"`
	QueueSize          int           `yaml:"queue_size"`
}

// TopicsConfig names the pub/sub topics exchanged with station hardware.
type TopicsConfig struct {
	Detail string `yaml:"detail"`
	Open   string `yaml:"open"`
	Load   string `yaml:"load"`
	Unload string `yaml:"unload"`
}

// ReservationConfig holds reservation lifecycle settings.
type ReservationConfig struct {
	HoldMinutes int           `yaml:"hold_minutes"`
	Hold        time.Duration `yaml:"-"`
}

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

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.PasswordAttemptsPerMinute <= 0 {
		cfg.Server.PasswordAttemptsPerMinute = 20
	}
	if cfg.Server.PasswordAttemptBurst <= 0 {
		cfg.Server.PasswordAttemptBurst = 5
	}
	if cfg.Server.CacheTTLSeconds < 0 {
		cfg.Server.CacheTTLSeconds = 0
	}

	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = "postgres"
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.MQTT.BrokerURL == "" {
		cfg.MQTT.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "lockerd"
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.Topics.Detail == "" {
		cfg.MQTT.Topics.Detail = "pds_public_broker/detail"
	}
	if cfg.MQTT.Topics.Open == "" {
		cfg.MQTT.Topics.Open = "pds_public_broker/open"
	}
	if cfg.MQTT.Topics.Load == "" {
		cfg.MQTT.Topics.Load = "pds_public_broker/load"
	}
	if cfg.MQTT.Topics.Unload == "" {
		cfg.MQTT.Topics.Unload = "pds_public_broker/unload"
	}
	if cfg.MQTT.ConnectTimeoutSecs <= 0 {
		cfg.MQTT.ConnectTimeoutSecs = 10
	}
	cfg.MQTT.ConnectTimeout = time.Duration(cfg.MQTT.ConnectTimeoutSecs) * time.Second
	if cfg.MQTT.CommandTimeoutMs <= 0 {
		cfg.MQTT.CommandTimeoutMs = 3000
	}
	cfg.MQTT.CommandTimeout = time.Duration(cfg.MQTT.CommandTimeoutMs) * time.Millisecond
	if cfg.MQTT.QueueSize <= 0 {
		cfg.MQTT.QueueSize = 64
	}

	if cfg.Reservation.HoldMinutes <= 0 {
		cfg.Reservation.HoldMinutes = 15
	}
	cfg.Reservation.Hold = time.Duration(cfg.Reservation.HoldMinutes) * time.Minute

	if cfg.Mail.Port <= 0 {
		cfg.Mail.Port = 587
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
