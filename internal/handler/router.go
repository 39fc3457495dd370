package handler

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/chatgate/internal/metrics"
	"github.com/hitoshi/chatgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HSTS              bool
	Collector         metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface
	Cookies     SessionCookieStore
	AuthConfig  AuthHandlerConfig

	// 運用
	HealthCheck    HealthCheckFunc
	MetricsHandler http.Handler

	// フロントエンドの静的ファイル。nilの場合は配信しない。
	StaticFiles fs.FS
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// /auth/start にはさらにクライアントIPごとのレート制限を適用する。
// status・callback・logoutは常に200またはホームへの302で応答するため制限しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Collector
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies, deps.AuthConfig, collector)

	r.Route("/auth", func(r chi.Router) {
		start := http.Handler(http.HandlerFunc(authHandler.Start))
		if deps.RateLimiter != nil {
			start = deps.RateLimiter.Middleware()(start)
		}
		r.Method(http.MethodGet, "/start", start)
		r.Get("/callback", authHandler.Callback)
		r.Get("/logout", authHandler.Logout)
		r.Get("/status", authHandler.Status)
	})

	r.Get("/api/data", Data)
	r.Get("/health", NewHealthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.StaticFiles != nil {
		r.Method(http.MethodGet, "/*", NewStaticHandler(deps.StaticFiles))
	}

	return r
}
