package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/chatgate/internal/model"
)

func setTestEnv(t *testing.T, databaseURL string) {
	t.Helper()
	t.Setenv("DATABASE_URL", databaseURL)
	t.Setenv("GOOGLE_CLIENT_ID", "test-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "test-client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("SESSION_SECRET", "test-session-secret-32bytes-long!")
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "")
}

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "SESSION_SECRET"} {
		t.Setenv(key, "")
	}
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t, "memory://")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DatabaseURL != "memory://" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "memory://")
	}
	if cfg.GoogleRedirectURL != "http://localhost:8080/auth/callback" {
		t.Errorf("GoogleRedirectURL = %q", cfg.GoogleRedirectURL)
	}

	// グローバルロガーがJSON出力になっていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

// TestInit_HonorsLogLevel はLOG_LEVELが設定読み込み前のロガーに反映されることを検証する。
func TestInit_HonorsLogLevel(t *testing.T) {
	setTestEnv(t, "memory://")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	slog.Default().Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info log should be suppressed at warn level, got %s", buf.String())
	}
	slog.Default().Warn("visible")
	if buf.Len() == 0 {
		t.Error("warn log should be written")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if !errors.Is(err, model.ErrConfigMissing) {
		t.Fatalf("Init() error = %v, want ErrConfigMissing", err)
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"postgres with password", "postgres://user:secret@db:5432/chatgate?sslmode=disable", "postgres://user:xxxxx@db:5432/chatgate?sslmode=disable"},
		{"mongodb without credentials", "mongodb://mongo:27017/chatgate", "mongodb://mongo:27017/chatgate"},
		{"unparsable", "postgres://user:pa ss@%zz", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maskDatabaseURL(tt.in)
			if got != tt.want {
				t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMaskDatabaseURL_NeverLeaksPassword(t *testing.T) {
	got := maskDatabaseURL("postgres://user:secret@db:5432/chatgate")
	if bytes.Contains([]byte(got), []byte("secret")) {
		t.Errorf("maskDatabaseURL leaked credentials: %q", got)
	}
}
