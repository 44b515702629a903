package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Firebase FirebaseConfig
	Relay    RelayConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type DBConfig struct {
	Driver   string // postgres or sqlite
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// Path is the database file when Driver is sqlite
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Timeout bounds a single store operation, pool acquisition included
	Timeout time.Duration
}

// DSN returns the gorm connection string for the configured driver
func (d DBConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000"
	}
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the connection URL used by golang-migrate
func (d DBConfig) URL() string {
	if d.Driver == "sqlite" {
		return "sqlite3://" + d.Path
	}
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// Enabled reports whether a Redis host was configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type CORSConfig struct {
	Origins []string
}

type FirebaseConfig struct {
	CredentialsFile string
}

// RelayConfig tunes the presence and delivery core
type RelayConfig struct {
	SendBuffer           int
	MaxMessageLength     int
	ConversationLimit    int
	PresenceSyncInterval time.Duration
	ResetPresenceOnStart bool
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	driver := getEnv("DB_DRIVER", "postgres")
	maxOpen := 20
	if driver == "sqlite" {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY
		maxOpen = 1
	}

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		DB: DBConfig{
			Driver:          driver,
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "chatrelay"),
			Password:        getEnv("DB_PASSWORD", "chatrelay"),
			Name:            getEnv("DB_NAME", "chatrelay"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			Path:            getEnv("DB_PATH", "chatrelay.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", maxOpen),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			Timeout:         getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Relay: RelayConfig{
			SendBuffer:           getEnvInt("RELAY_SEND_BUFFER", 256),
			MaxMessageLength:     getEnvInt("RELAY_MAX_MESSAGE_LENGTH", 4000),
			ConversationLimit:    getEnvInt("RELAY_CONVERSATION_LIMIT", 50),
			PresenceSyncInterval: getEnvDuration("PRESENCE_SYNC_INTERVAL", 15*time.Second),
			ResetPresenceOnStart: getEnv("PRESENCE_RESET_ON_START", "false") == "true",
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
