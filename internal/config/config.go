package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreDriver は永続化層の実装種別。
type StoreDriver string

const (
	// StoreDriverPostgres はPostgreSQLを永続化層に使う。
	StoreDriverPostgres StoreDriver = "postgres"
	// StoreDriverMemory はプロセス内メモリを永続化層に使う（開発・デモ用）。
	StoreDriverMemory StoreDriver = "memory"
)

// MinAssertionSecretLength は認証トークン署名鍵の最小バイト長。
const MinAssertionSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver       StoreDriver
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnectAttempts int
	AutoMigrate       bool

	// Identity assertion
	AssertionSecret string
	AssertionTTL    time.Duration
	AssertionIssuer string

	// Credential
	CredentialDefaultValidity time.Duration
	CredentialMaxValidity     time.Duration
	QRImageSize               int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitLogin   int
	RateLimitCheckIn int

	// Logging
	LogLevel string

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreDriver = StoreDriver(strings.ToLower(getEnvString("STORE_DRIVER", string(StoreDriverPostgres))))
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q: %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreDriver == StoreDriverPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AssertionSecret = os.Getenv("ASSERTION_SECRET")
	if cfg.AssertionSecret == "" {
		missing = append(missing, "ASSERTION_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.AssertionSecret) < MinAssertionSecretLength {
		return nil, fmt.Errorf("ASSERTION_SECRET must be at least %d bytes", MinAssertionSecretLength)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.DBConnectAttempts = getEnvInt("DB_CONNECT_ATTEMPTS", 5)
	cfg.AutoMigrate = getEnvBool("AUTO_MIGRATE", true)
	cfg.AssertionTTL = getEnvDuration("ASSERTION_TTL", 24*time.Hour)
	cfg.AssertionIssuer = getEnvString("ASSERTION_ISSUER", "rollcall")
	cfg.CredentialDefaultValidity = getEnvDuration("CREDENTIAL_DEFAULT_VALIDITY", 15*time.Minute)
	cfg.CredentialMaxValidity = getEnvDuration("CREDENTIAL_MAX_VALIDITY", 24*time.Hour)
	cfg.QRImageSize = getEnvInt("QR_IMAGE_SIZE", 256)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.RateLimitCheckIn = getEnvInt("RATE_LIMIT_CHECKIN", 20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.CredentialDefaultValidity > cfg.CredentialMaxValidity {
		return nil, fmt.Errorf("CREDENTIAL_DEFAULT_VALIDITY (%s) exceeds CREDENTIAL_MAX_VALIDITY (%s)",
			cfg.CredentialDefaultValidity, cfg.CredentialMaxValidity)
	}
	if cfg.AssertionTTL <= 0 {
		return nil, fmt.Errorf("ASSERTION_TTL must be positive: %s", cfg.AssertionTTL)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
