package database

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMemory_AppliesMigrations(t *testing.T) {
	client, err := NewMemory(discardLogger())
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()

	var versions []string
	require.NoError(t, client.GetDB().SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"))
	assert.Equal(t, []string{"0001_init", "0002_job_events"}, versions)

	for _, table := range []string{"printers", "print_jobs", "job_events"} {
		var count int
		err := client.GetDB().GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table)
		require.NoError(t, err, table)
		assert.Zero(t, count, table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	client, err := NewMemory(discardLogger())
	require.NoError(t, err)
	defer client.Close()

	applied, err := client.Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestLoadMigrations(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			migrations, err := LoadMigrations(driver)
			require.NoError(t, err)
			require.Len(t, migrations, 2)
			assert.Equal(t, "0001_init", migrations[0].Version)
			assert.Contains(t, migrations[0].SQL, "print_jobs")
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		want      string
		errString string
	}{
		{
			name: "postgres",
			config: Config{
				Driver: DriverPostgres, Host: "db", Port: 5432,
				User: "relay", Password: "secret", Database: "print_relay", SSLMode: "disable",
			},
			want: "host=db port=5432 user=relay password=secret dbname=print_relay sslmode=disable",
		},
		{
			name:   "sqlite",
			config: Config{Driver: DriverSQLite, Path: "/var/lib/relay.db"},
			want:   "/var/lib/relay.db?_foreign_keys=on&_busy_timeout=5000",
		},
		{
			name:      "sqlite without path",
			config:    Config{Driver: DriverSQLite},
			errString: "requires a database path",
		},
		{
			name:      "unknown driver",
			config:    Config{Driver: "mysql"},
			errString: "unsupported database driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.dsn()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	client, err := NewMemory(discardLogger())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.Contains(t, client.Stats(), "MaxOpenConns: 1")
}
