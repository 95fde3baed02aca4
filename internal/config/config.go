package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	SecretKey   string
	DatabaseURL string
	RedisURL    string // empty disables Redis

	KafkaBrokers  string
	KafkaTopic    string
	KafkaUsername string
	KafkaPassword string
	KafkaCACert   string

	Mail MailConfig

	// Default for the enable_user_management setting when it has never been stored.
	EnableUserManagement bool

	ServerPort  string
	Environment string
	UploadMaxMB int
}

// MailConfig holds SMTP settings for low-stock alerts.
type MailConfig struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Sender    string
	Recipient string
}

// Enabled reports whether alerts can be delivered.
func (m MailConfig) Enabled() bool {
	return m.Server != "" && m.Recipient != ""
}

// Load reads the process environment. main loads .env beforehand.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	getEnv := func(key, defaultValue string) string {
		v.SetDefault(key, defaultValue)
		return strings.TrimSpace(v.GetString(key))
	}
	getEnvInt := func(key string, defaultValue int) int {
		v.SetDefault(key, defaultValue)
		if value := v.GetInt(key); value > 0 {
			return value
		}
		return defaultValue
	}
	getEnvBool := func(key string, defaultValue bool) bool {
		v.SetDefault(key, defaultValue)
		return v.GetBool(key)
	}

	// DATABASE_URL wins; otherwise try to assemble a postgres URL from PG* parts,
	// and fall back to a local sqlite file.
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		databaseURL = getEnv("POSTGRES_URL", "")
	}
	if databaseURL == "" {
		pgHost := getEnv("PGHOST", "")
		pgPort := getEnv("PGPORT", "5432")
		pgUser := getEnv("PGUSER", "postgres")
		pgPassword := getEnv("PGPASSWORD", "")
		pgDatabase := getEnv("PGDATABASE", "lager")

		if pgHost != "" {
			if pgPassword != "" {
				databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
					pgUser, pgPassword, pgHost, pgPort, pgDatabase)
			} else {
				databaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
					pgUser, pgHost, pgPort, pgDatabase)
			}
		}
	}
	if databaseURL == "" {
		databaseURL = "sqlite://inventory.db"
	}

	redisURL := getEnv("REDIS_URL", "")
	if redisURL == "" {
		redisHost := getEnv("REDISHOST", "")
		if redisHost != "" {
			redisPort := getEnv("REDISPORT", "6379")
			redisPassword := getEnv("REDISPASSWORD", "")
			if redisPassword != "" {
				redisURL = fmt.Sprintf("redis://:%s@%s:%s/0", redisPassword, redisHost, redisPort)
			} else {
				redisURL = fmt.Sprintf("redis://%s:%s/0", redisHost, redisPort)
			}
		}
	}

	return &Config{
		SecretKey:     getEnv("SECRET_KEY", "change-me"),
		DatabaseURL:   databaseURL,
		RedisURL:      redisURL,
		KafkaBrokers:  getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "lager-events"),
		KafkaUsername: getEnv("KAFKA_USERNAME", ""),
		KafkaPassword: getEnv("KAFKA_PASSWORD", ""),
		KafkaCACert:   getEnv("KAFKA_CA_CERT", ""),
		Mail: MailConfig{
			Server:    getEnv("MAIL_SERVER", ""),
			Port:      getEnvInt("MAIL_PORT", 587),
			Username:  getEnv("MAIL_USERNAME", ""),
			Password:  getEnv("MAIL_PASSWORD", ""),
			Sender:    getEnv("MAIL_SENDER", "lager@localhost"),
			Recipient: getEnv("MAIL_ALERT_RECIPIENT", ""),
		},
		EnableUserManagement: getEnvBool("ENABLE_USER_MANAGEMENT", false),
		ServerPort:           getEnv("PORT", "5000"),
		Environment:          getEnv("ENV", "development"),
		UploadMaxMB:          getEnvInt("UPLOAD_MAX_MB", 16),
	}
}

// SafeDatabaseURL masks the password part of the database URL for logging.
func (c *Config) SafeDatabaseURL() string {
	safeURL := c.DatabaseURL
	if idx := strings.Index(safeURL, "@"); idx > 0 {
		if schemeIdx := strings.Index(safeURL, "://"); schemeIdx > 0 && schemeIdx < idx {
			safeURL = safeURL[:schemeIdx+3] + "***@" + safeURL[idx+1:]
		}
	}
	return safeURL
}
