package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/hitoshi/chatgate/internal/metrics"
	"github.com/hitoshi/chatgate/internal/model"
	"github.com/hitoshi/chatgate/internal/repository"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "session_id"

// sessionTokenBytes はセッショントークンの乱数バイト数。
const sessionTokenBytes = 32

// SessionConfig はセッション管理の設定。
type SessionConfig struct {
	MaxAge       int    // セッション有効期間（秒）
	Secret       string // Cookie署名用シークレット
	CookieDomain string
	CookieSecure bool
}

// SessionManager はサーバー側セッションの発行・解決・破棄と、
// それを運ぶCookieの読み書きを担う。
// SessionRepositoryに触れるのはこの型だけ。
type SessionManager struct {
	sessions  repository.SessionRepository
	users     repository.UserRepository
	config    SessionConfig
	codec     *securecookie.SecureCookie
	collector metrics.MetricsCollector
	now       func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewSessionManager(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	config SessionConfig,
	collector metrics.MetricsCollector,
) *SessionManager {
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	// 任意長のシークレットからHMAC用の32バイト鍵を導出する
	hashKey := sha256.Sum256([]byte(config.Secret))
	codec := securecookie.New(hashKey[:], nil)
	codec.MaxAge(config.MaxAge)

	return &SessionManager{
		sessions:  sessions,
		users:     users,
		config:    config,
		codec:     codec,
		collector: collector,
		now:       time.Now,
	}
}

// Create はユーザーに紐づく新しいセッションを発行し永続化する。
func (m *SessionManager) Create(ctx context.Context, userID string) (*model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now()
	session := &model.Session{
		ID:        token,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(m.config.MaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Resolve はセッションIDから紐づくユーザーを返す。
// 空・未知・期限切れ・ユーザー不在のいずれもmodel.ErrSessionInvalidを返す。
// ストアのエラーもログに残したうえでErrSessionInvalidとして扱う。
func (m *SessionManager) Resolve(ctx context.Context, sessionID string) (*model.User, error) {
	user, err := m.resolve(ctx, sessionID)
	m.collector.RecordSessionResolve(err == nil)
	return user, err
}

func (m *SessionManager) resolve(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.ErrSessionInvalid
	}

	session, err := m.sessions.FindByID(ctx, sessionID)
	if err != nil {
		slog.Error("failed to find session", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", model.ErrSessionInvalid, err)
	}
	if session == nil || session.Expired(m.now()) {
		return nil, model.ErrSessionInvalid
	}

	user, err := m.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// ユーザーが消えたセッションは以後も解決できないため破棄する
			if derr := m.sessions.DeleteByID(ctx, sessionID); derr != nil {
				slog.Warn("failed to delete orphaned session", slog.String("error", derr.Error()))
			}
			slog.Info("session bound to missing user", slog.String("user_id", session.UserID))
			return nil, model.ErrSessionInvalid
		}
		slog.Error("failed to find session user",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", model.ErrSessionInvalid, err)
	}

	return user, nil
}

// Destroy はセッションを破棄する。既に存在しない場合もエラーにしない。
func (m *SessionManager) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired は期限切れセッションをストアから削除し、削除件数を返す。
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	m.collector.RecordSessionsPurged(n)
	return n, nil
}

// IssueCookie はセッショントークンを署名してCookieに設定する。
func (m *SessionManager) IssueCookie(w http.ResponseWriter, session *model.Session) error {
	encoded, err := m.codec.Encode(SessionCookieName, session.ID)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   m.config.MaxAge,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ReadCookie はリクエストのCookieからセッショントークンを取り出す。
// Cookieが無い場合や署名が一致しない場合は空文字を返す。
func (m *SessionManager) ReadCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	var token string
	if err := m.codec.Decode(SessionCookieName, cookie.Value, &token); err != nil {
		slog.Debug("rejected session cookie", slog.String("error", err.Error()))
		return ""
	}
	return token
}

// ClearCookie はセッションCookieを削除する。
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
