// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hitoshi/chatgate/internal/model"
)

const defaultServerPort = "8080"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	RedisURL    string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	OAuthHTTPTimeout   time.Duration

	// Session
	SessionSecret          string
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Rate Limit（/auth/* への1分あたりのリクエスト数、クライアントIPごと）
	RateLimitAuth int

	// Server
	ServerPort string
	BaseURL    string
	StaticDir  string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// rawEnv は環境変数の生の値を保持する。
type rawEnv struct {
	DatabaseURL            string        `env:"DATABASE_URL"`
	RedisURL               string        `env:"REDIS_URL"`
	GoogleClientID         string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret     string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL      string        `env:"GOOGLE_REDIRECT_URL"`
	OAuthHTTPTimeout       time.Duration `env:"OAUTH_HTTP_TIMEOUT"       envDefault:"10s"`
	SessionSecret          string        `env:"SESSION_SECRET"`
	SessionMaxAge          int           `env:"SESSION_MAX_AGE"          envDefault:"86400"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	RateLimitAuth          int           `env:"RATE_LIMIT_AUTH"          envDefault:"60"`
	ServerPort             string        `env:"SERVER_PORT"`
	Port                   string        `env:"PORT"`
	BaseURL                string        `env:"BASE_URL"                 envDefault:"http://localhost:8080"`
	StaticDir              string        `env:"STATIC_DIR"               envDefault:"frontend"`
	CookieDomain           string        `env:"COOKIE_DOMAIN"`
	CORSAllowedOrigin      string        `env:"CORS_ALLOWED_ORIGIN"      envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はmodel.ErrConfigMissingをラップしたエラーを返す。
func Load() (*Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	// 未設定の必須項目はまとめて報告する
	var missing []string
	for _, req := range []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", raw.DatabaseURL},
		{"SESSION_SECRET", raw.SessionSecret},
		{"GOOGLE_CLIENT_ID", raw.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", raw.GoogleClientSecret},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrConfigMissing, strings.Join(missing, ", "))
	}

	if raw.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", raw.SessionMaxAge)
	}
	if raw.SessionCleanupInterval <= 0 {
		return nil, fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive, got %s", raw.SessionCleanupInterval)
	}
	if raw.OAuthHTTPTimeout <= 0 {
		return nil, fmt.Errorf("OAUTH_HTTP_TIMEOUT must be positive, got %s", raw.OAuthHTTPTimeout)
	}

	baseURL := strings.TrimSuffix(raw.BaseURL, "/")

	cfg := &Config{
		DatabaseURL:            raw.DatabaseURL,
		RedisURL:               raw.RedisURL,
		GoogleClientID:         raw.GoogleClientID,
		GoogleClientSecret:     raw.GoogleClientSecret,
		GoogleRedirectURL:      raw.GoogleRedirectURL,
		OAuthHTTPTimeout:       raw.OAuthHTTPTimeout,
		SessionSecret:          raw.SessionSecret,
		SessionMaxAge:          raw.SessionMaxAge,
		SessionCleanupInterval: raw.SessionCleanupInterval,
		RateLimitAuth:          raw.RateLimitAuth,
		ServerPort:             firstNonEmpty(raw.ServerPort, raw.Port, defaultServerPort),
		BaseURL:                baseURL,
		StaticDir:              raw.StaticDir,
		CookieSecure:           strings.HasPrefix(baseURL, "https://"),
		CookieDomain:           raw.CookieDomain,
		CORSAllowedOrigin:      raw.CORSAllowedOrigin,
	}
	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = baseURL + "/auth/callback"
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
