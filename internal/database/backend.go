package database

import (
	"fmt"
	"net/url"
	"strings"
)

// Backend はユーザーストアの実装種別を表す。
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongodb"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

// ParseBackend はDATABASE_URLのスキームからストア種別を判定する。
func ParseBackend(databaseURL string) (Backend, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "mongodb", "mongodb+srv":
		return BackendMongo, nil
	case "sqlite", "file":
		return BackendSQLite, nil
	case "memory":
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
}

// SQLitePath は sqlite:// または file: URLからファイルパスを取り出す。
// sqlite:///var/lib/chatgate.db は絶対パス、sqlite://chatgate.db は相対パスとして扱う。
func SQLitePath(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid sqlite url: %w", err)
	}
	p := u.Host + u.Path
	if u.Opaque != "" {
		p = u.Opaque
	}
	if p == "" {
		return "", fmt.Errorf("sqlite url %q has no path", databaseURL)
	}
	return p, nil
}
