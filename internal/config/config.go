// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッションストアの種別
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// minSessionSecretLength は release モードで要求する署名鍵の最小バイト数です。
const minSessionSecretLength = 32

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // logrus のログレベル

	// セッション設定
	SessionSecret        string // クッキー署名用の秘密鍵
	SessionEncryptionKey string // クッキー暗号化鍵（16/24/32バイト、任意）
	SessionCookieName    string // セッションクッキー名
	SessionStore         string // セッションレジストリの種別 (redis, memory)
	SessionMaxAgeMinutes int    // セッションの絶対有効期限（分）
	SessionIdleMinutes   int    // 無操作タイムアウト（分）

	// データベース設定
	DatabaseDriver string // database/sql のドライバー名 (sqlite3, pgx)
	DatabaseURL    string // 接続文字列

	// Redis設定
	RedisURL     string // セッションレジストリと監査キュー用のRedis接続URL
	AuditEnabled bool   // ログイン監査ジョブを有効にするか

	// プロフィール画像
	ProfilePictureDir string // プロフィール画像の保存ディレクトリ

	// パスワードハッシュ
	BcryptCost int // プロビジョニング時の bcrypt コスト

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// リバースプロキシ
	TrustedProxies string // X-Forwarded-For を信頼するプロキシのIP/CIDR（カンマ区切り、空なら信頼しない）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// セッション設定
		SessionSecret:        getEnv("SESSION_SECRET", ""),
		SessionEncryptionKey: getEnv("SESSION_ENCRYPTION_KEY", ""),
		SessionCookieName:    getEnv("SESSION_COOKIE_NAME", "user_id"),
		SessionStore:         strings.ToLower(getEnv("SESSION_STORE", SessionStoreRedis)),
		SessionMaxAgeMinutes: getEnvAsInt("SESSION_MAX_AGE_MINUTES", 12*60),
		SessionIdleMinutes:   getEnvAsInt("SESSION_IDLE_MINUTES", 30),

		// データベース設定
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:    getEnv("DATABASE_URL", "file:transit.db?_foreign_keys=on"),

		// Redis設定
		RedisURL:     getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		AuditEnabled: getEnvAsBool("AUDIT_ENABLED", true),

		// プロフィール画像
		ProfilePictureDir: getEnv("PROFILE_PICTURE_DIR", "./data/pictures"),

		// パスワードハッシュ
		BcryptCost: getEnvAsInt("BCRYPT_COST", 0),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// リバースプロキシ
		TrustedProxies: getEnv("TRUSTED_PROXIES", ""),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.SessionStore {
	case SessionStoreRedis, SessionStoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreRedis, SessionStoreMemory, c.SessionStore)
	}

	switch c.DatabaseDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite3 or pgx, got %q", c.DatabaseDriver)
	}

	switch len(c.SessionEncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("SESSION_ENCRYPTION_KEY must be 16, 24 or 32 bytes")
	}

	if c.SessionMaxAgeMinutes <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE_MINUTES must be positive")
	}
	if c.SessionIdleMinutes <= 0 {
		return fmt.Errorf("SESSION_IDLE_MINUTES must be positive")
	}

	// ローカル開発では署名鍵は任意（起動時にランダム生成する）
	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if len(c.SessionSecret) < minSessionSecretLength {
			return fmt.Errorf("SESSION_SECRET must be at least %d bytes in release mode", minSessionSecretLength)
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in release mode")
		}
		if c.SessionStore == SessionStoreRedis && c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	}

	if c.AuditEnabled && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when AUDIT_ENABLED=true")
	}

	return nil
}

// IsRelease は release モードで動作しているかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// SessionMaxAge はセッションの絶対有効期限を返します。
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeMinutes) * time.Minute
}

// SessionIdleTimeout は無操作タイムアウトを返します。
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyList は信頼するプロキシの一覧を返します。
// 未設定なら nil を返し、クライアントIPは接続元アドレスのみから決まります。
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
