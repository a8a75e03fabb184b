package config

import (
	"fmt"
	"net/url"
	"time"
)

// APIConfig holds runtime configuration for the prediction API service.
type APIConfig struct {
	Environment        string
	Debug              bool
	Addr               string
	DBHost             string
	DBPort             int
	DBUser             string
	DBPassword         string
	DBName             string
	DBPoolSize         int
	MigrationsDir      string
	OracleURL          string
	OracleTimeout      time.Duration
	RecordWriteTimeout time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Debug:              GetBool("DEBUG", false),
		Addr:               GetString("API_ADDR", ":3000"),
		DBHost:             GetString("DB_HOST", "localhost"),
		DBPort:             GetInt("DB_PORT", 5432),
		DBUser:             GetString("DB_USER", "postgres"),
		DBPassword:         GetString("DB_PASSWORD", "postgres"),
		DBName:             GetString("DB_NAME", "factorybrain"),
		DBPoolSize:         GetInt("DB_POOL_SIZE", 10),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		OracleURL:          GetString("ORACLE_URL", "http://127.0.0.1:8000"),
		OracleTimeout:      time.Duration(GetInt("ORACLE_TIMEOUT_SECONDS", 5)) * time.Second,
		RecordWriteTimeout: time.Duration(GetInt("RECORD_WRITE_TIMEOUT_SECONDS", 5)) * time.Second,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// DatabaseURL assembles the pgx connection string from the discrete
// DB_* settings.
func (c APIConfig) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}
