package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "PGHOST", "REDIS_URL", "REDISHOST", "ENABLE_USER_MANAGEMENT", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "sqlite://inventory.db", cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.EnableUserManagement)
	assert.Equal(t, "5000", cfg.ServerPort)
	assert.Equal(t, "lager-events", cfg.KafkaTopic)
	assert.False(t, cfg.Mail.Enabled())
}

func TestLoadAssemblesPostgresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("PGHOST", "db")
	t.Setenv("PGUSER", "lager")
	t.Setenv("PGPASSWORD", "secret")
	t.Setenv("PGDATABASE", "stock")

	cfg := Load()
	assert.Equal(t, "postgres://lager:secret@db:5432/stock?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "postgres://***@db:5432/stock?sslmode=disable", cfg.SafeDatabaseURL())
}

func TestEnableUserManagementFlag(t *testing.T) {
	t.Setenv("ENABLE_USER_MANAGEMENT", "1")
	assert.True(t, Load().EnableUserManagement)

	t.Setenv("ENABLE_USER_MANAGEMENT", "true")
	assert.True(t, Load().EnableUserManagement)

	t.Setenv("ENABLE_USER_MANAGEMENT", "nope")
	assert.False(t, Load().EnableUserManagement)
}

func TestMailEnabled(t *testing.T) {
	m := MailConfig{Server: "smtp.example.org"}
	assert.False(t, m.Enabled())
	m.Recipient = "lager@example.org"
	assert.True(t, m.Enabled())
}

func TestInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("UPLOAD_MAX_MB", "viel")
	t.Setenv("MAIL_PORT", "2525")

	cfg := Load()
	assert.Equal(t, 16, cfg.UploadMaxMB)
	assert.Equal(t, 2525, cfg.Mail.Port)
}
