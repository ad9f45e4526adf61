package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "postgres", cfg.Database.Driver)
			assert.Equal(t, "print_relay", cfg.Database.Database)
			assert.Equal(t, "print.jobs", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, []string{"job.completed", "job.failed"}, cfg.RabbitMQ.BindingKeys)
			assert.True(t, cfg.Events.Enabled)
			assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
			assert.Equal(t, 5*time.Second, cfg.Push.AuthTimeout)
			assert.Equal(t, 50, cfg.Pending.MaxPerIdentity)
			assert.Equal(t, 2*time.Hour, cfg.Pending.TTL)
			assert.Equal(t, []string{"lp", "-d", "front-desk"}, cfg.Agent.Command)
			assert.Equal(t, "print-relay-api", cfg.App.Name)
		})
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	cfg, err := Load("testdata/sqlite_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Push.AuthTimeout)
	assert.Equal(t, 100, cfg.Pending.MaxPerIdentity)
	assert.Equal(t, 24*time.Hour, cfg.Pending.TTL)
	assert.Equal(t, "job.status", cfg.RabbitMQ.RoutingKey)
	assert.NoError(t, cfg.ValidateAPIConfig())
}

func TestConfig_ApplyEnv(t *testing.T) {
	cfg := Defaults()
	env := map[string]string{
		EnvDBPassword:       "db-secret",
		EnvJWTSecret:        "jwt-secret-from-env",
		EnvRabbitMQPassword: "",
		EnvAgentToken:       "agent-token",
	}
	cfg.RabbitMQ.Password = "keep-me"

	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, "db-secret", cfg.Database.Password)
	assert.Equal(t, "jwt-secret-from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "keep-me", cfg.RabbitMQ.Password)
	assert.Equal(t, "agent-token", cfg.Agent.Token)
}

func validAPIConfig() *Config {
	cfg := Defaults()
	cfg.Database.Host = "localhost"
	cfg.Database.Database = "print_relay"
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "unknown database driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			errString: "invalid database driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Database.Driver = "sqlite3"
				c.Database.Path = ""
			},
			errString: "database path is required",
		},
		{
			name:      "short jwt secret",
			mutate:    func(c *Config) { c.Auth.JWTSecret = "short" },
			errString: "jwt_secret must be at least",
		},
		{
			name:      "zero auth timeout",
			mutate:    func(c *Config) { c.Push.AuthTimeout = 0 },
			errString: "auth_timeout",
		},
		{
			name:      "pong wait shorter than ping interval",
			mutate:    func(c *Config) { c.Push.PongWait = c.Push.PingInterval },
			errString: "pong_wait",
		},
		{
			name:      "zero pending capacity",
			mutate:    func(c *Config) { c.Pending.MaxPerIdentity = 0 },
			errString: "max_per_identity",
		},
		{
			name: "events enabled without rabbitmq host",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.RabbitMQ.Host = ""
			},
			errString: "rabbitmq host is required",
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "trace" },
			errString: "invalid log level",
		},
		{
			name:      "invalid log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			errString: "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "missing exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			errString: "worker concurrency",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			errString: "job_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			cfg.RabbitMQ.Host = "localhost"
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateAgentConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid log executor",
			mutate: func(c *Config) {},
		},
		{
			name: "valid command executor",
			mutate: func(c *Config) {
				c.Agent.Executor = "command"
				c.Agent.Command = []string{"lp"}
			},
		},
		{
			name:      "missing token",
			mutate:    func(c *Config) { c.Agent.Token = "" },
			errString: "agent token is required",
		},
		{
			name:      "bad server url",
			mutate:    func(c *Config) { c.Agent.ServerURL = "relay.local:8080" },
			errString: "server_url",
		},
		{
			name:      "safety poll faster than poll",
			mutate:    func(c *Config) { c.Agent.SafetyPollInterval = time.Second },
			errString: "safety_poll_interval",
		},
		{
			name:      "command executor without command",
			mutate:    func(c *Config) { c.Agent.Executor = "command" },
			errString: "agent command is required",
		},
		{
			name:      "unknown executor",
			mutate:    func(c *Config) { c.Agent.Executor = "fax" },
			errString: "invalid agent executor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Agent.Token = "agent-token"
			tt.mutate(cfg)

			err := cfg.ValidateAgentConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
