// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/chatgate/internal/metrics"
	"github.com/hitoshi/chatgate/internal/model"
)

const oauthStateCookie = "oauth_state"

// oauthStateMaxAge はstate Cookieの有効期間（秒）。
const oauthStateMaxAge = 600

// homePath はログイン・ログアウト後の戻り先。失敗時も同じ場所に戻す。
const homePath = "/"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	StartLogin(state string) string
	CompleteLogin(ctx context.Context, code string) (*model.Session, error)
	Status(ctx context.Context, sessionID string) model.Status
	Logout(ctx context.Context, sessionID string) error
}

// SessionCookieStore はセッションCookieの読み書きを行うインターフェース。
type SessionCookieStore interface {
	IssueCookie(w http.ResponseWriter, session *model.Session) error
	ReadCookie(r *http.Request) string
	ClearCookie(w http.ResponseWriter)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
// 認証の失敗はすべてホームへの302に変換し、エラーページは返さない。
type AuthHandler struct {
	service   AuthServiceInterface
	cookies   SessionCookieStore
	config    AuthHandlerConfig
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies SessionCookieStore, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AuthHandler{
		service:   service,
		cookies:   cookies,
		config:    config,
		collector: collector,
	}
}

// Start はGoogle OAuthフローを開始する。
// GET /auth/start
func (h *AuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.StartLogin(state), http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	h.clearStateCookie(w)

	// 1. 同意拒否などIdP側のエラー
	if idpErr := query.Get("error"); idpErr != "" {
		slog.Info("oauth consent not granted", slog.String("error", idpErr))
		h.collector.RecordLoginFailure(metrics.ReasonProvider)
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}

	// 2. stateの検証（CSRF対策）
	if !h.validState(r, query.Get("state")) {
		slog.Warn("oauth state mismatch")
		h.collector.RecordLoginFailure(metrics.ReasonState)
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}

	// 3. 認証処理
	session, err := h.service.CompleteLogin(r.Context(), query.Get("code"))
	if err != nil {
		slog.Warn("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}

	// 4. 以前のセッションは引き継がない
	if previous := h.cookies.ReadCookie(r); previous != "" {
		if err := h.service.Logout(r.Context(), previous); err != nil {
			slog.Warn("failed to destroy previous session", slog.String("error", err.Error()))
		}
	}

	// 5. セッションCookieを設定
	if err := h.cookies.IssueCookie(w, session); err != nil {
		slog.Error("failed to issue session cookie", slog.String("error", err.Error()))
		if derr := h.service.Logout(r.Context(), session.ID); derr != nil {
			slog.Warn("failed to destroy unissued session", slog.String("error", derr.Error()))
		}
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}

	http.Redirect(w, r, homePath, http.StatusFound)
}

// Logout はセッションを破棄してホームに戻す。
// GET /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := h.cookies.ReadCookie(r); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// 失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.cookies.ClearCookie(w)
	http.Redirect(w, r, homePath, http.StatusFound)
}

// Status は現在のログイン状態を返す。
// GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status(r.Context(), h.cookies.ReadCookie(r))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("failed to write auth status", slog.String("error", err.Error()))
	}
}

func (h *AuthHandler) validState(r *http.Request, state string) bool {
	if state == "" {
		return false
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
