package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// MinJWTSecretLength guards against trivially guessable HS256 keys
	MinJWTSecretLength = 16
)

// Environment variables that override secrets from the config file
const (
	EnvDBPassword       = "PRINT_RELAY_DB_PASSWORD"
	EnvJWTSecret        = "PRINT_RELAY_JWT_SECRET"
	EnvRabbitMQPassword = "PRINT_RELAY_RABBITMQ_PASSWORD"
	EnvAgentToken       = "PRINT_RELAY_AGENT_TOKEN"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Events   EventsConfig   `yaml:"events"`
	Auth     AuthConfig     `yaml:"auth"`
	Push     PushConfig     `yaml:"push"`
	Pending  PendingConfig  `yaml:"pending"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Agent    AgentConfig    `yaml:"agent"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds Job Store connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres or sqlite3
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	User        string           `yaml:"user"`
	Password    string           `yaml:"password"`
	VHost       string           `yaml:"vhost"`
	Exchange    ExchangeConfig   `yaml:"exchange"`
	Queue       QueueConfig      `yaml:"queue"`
	RoutingKey  string           `yaml:"routing_key"`
	BindingKeys []string         `yaml:"binding_keys"`
	Connection  ConnectionConfig `yaml:"connection"`
	Publish     PublishConfig    `yaml:"publish"`
	Consumer    ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// EventsConfig toggles job lifecycle event publishing
type EventsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AuthConfig holds the credential verification settings shared by HTTP and push
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// PushConfig holds push channel settings
type PushConfig struct {
	AuthTimeout    time.Duration `yaml:"auth_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteWait      time.Duration `yaml:"write_wait"`
	SendBuffer     int           `yaml:"send_buffer"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// PendingConfig bounds the per-identity pending queue
type PendingConfig struct {
	MaxPerIdentity int           `yaml:"max_per_identity"`
	TTL            time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds history-service worker configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AgentConfig holds print-agent settings
type AgentConfig struct {
	ServerURL          string        `yaml:"server_url"`
	Token              string        `yaml:"token"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	SafetyPollInterval time.Duration `yaml:"safety_poll_interval"`
	ReconnectMin       time.Duration `yaml:"reconnect_min"`
	ReconnectMax       time.Duration `yaml:"reconnect_max"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	Executor           string        `yaml:"executor"` // command or log
	Command            []string      `yaml:"command"`
	ExecTimeout        time.Duration `yaml:"exec_timeout"`
}

// Defaults returns a configuration with every tunable set
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Port:  5672,
			VHost: "/",
			Exchange: ExchangeConfig{
				Name:    "print.jobs",
				Type:    "topic",
				Durable: true,
			},
			Queue: QueueConfig{
				Name:    "print.job.history",
				Durable: true,
			},
			RoutingKey:  "job.status",
			BindingKeys: []string{"job.#"},
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
				Timeout:           2 * time.Second,
			},
			Consumer: ConsumerConfig{
				PrefetchCount: 10,
			},
		},
		Auth: AuthConfig{
			Issuer:   "print-relay",
			TokenTTL: 24 * time.Hour,
		},
		Push: PushConfig{
			AuthTimeout:    10 * time.Second,
			PingInterval:   25 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			SendBuffer:     64,
			MaxMessageSize: 64 << 10,
		},
		Pending: PendingConfig{
			MaxPerIdentity: 100,
			TTL:            24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		App: AppConfig{
			Name:        "print-relay",
			Version:     "dev",
			Environment: "development",
		},
		Worker: WorkerConfig{
			Concurrency:     4,
			JobTimeout:      10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Agent: AgentConfig{
			ServerURL:          "http://localhost:8080",
			PollInterval:       2 * time.Second,
			SafetyPollInterval: 30 * time.Second,
			ReconnectMin:       time.Second,
			ReconnectMax:       30 * time.Second,
			RequestTimeout:     10 * time.Second,
			Executor:           "log",
			ExecTimeout:        2 * time.Minute,
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv(os.LookupEnv)

	return config, nil
}

// ApplyEnv overrides secrets from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDBPassword); ok && v != "" {
		c.Database.Password = v
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup(EnvRabbitMQPassword); ok && v != "" {
		c.RabbitMQ.Password = v
	}
	if v, ok := lookup(EnvAgentToken); ok && v != "" {
		c.Agent.Token = v
	}
}

// Validate checks the settings every binary depends on
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}

	return nil
}

// ValidateAPIConfig checks the api-service configuration
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth jwt_secret must be at least %d characters", MinJWTSecretLength)
	}

	if c.Push.AuthTimeout <= 0 {
		return fmt.Errorf("push auth_timeout must be greater than 0")
	}

	if c.Push.PingInterval <= 0 || c.Push.PongWait <= c.Push.PingInterval {
		return fmt.Errorf("push pong_wait must be greater than ping_interval")
	}

	if c.Push.SendBuffer <= 0 {
		return fmt.Errorf("push send_buffer must be greater than 0")
	}

	if c.Pending.MaxPerIdentity <= 0 {
		return fmt.Errorf("pending max_per_identity must be greater than 0")
	}

	if c.Pending.TTL < 0 {
		return fmt.Errorf("pending ttl must be non-negative")
	}

	if c.Events.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWorkerConfig checks the history-service configuration
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

// ValidateAgentConfig checks the print-agent configuration
func (c *Config) ValidateAgentConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if !strings.HasPrefix(c.Agent.ServerURL, "http://") && !strings.HasPrefix(c.Agent.ServerURL, "https://") {
		return fmt.Errorf("agent server_url must be an http(s) URL")
	}

	if c.Agent.Token == "" {
		return fmt.Errorf("agent token is required")
	}

	if c.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent poll_interval must be greater than 0")
	}

	if c.Agent.SafetyPollInterval < c.Agent.PollInterval {
		return fmt.Errorf("agent safety_poll_interval must not be shorter than poll_interval")
	}

	switch c.Agent.Executor {
	case "log":
	case "command":
		if len(c.Agent.Command) == 0 {
			return fmt.Errorf("agent command is required for the command executor")
		}
	default:
		return fmt.Errorf("invalid agent executor: %s (valid: command, log)", c.Agent.Executor)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (valid: postgres, sqlite3)", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
