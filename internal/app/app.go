// Package app はアプリケーションの起動とワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/chatgate/internal/auth"
	"github.com/hitoshi/chatgate/internal/config"
	"github.com/hitoshi/chatgate/internal/database"
	"github.com/hitoshi/chatgate/internal/handler"
	"github.com/hitoshi/chatgate/internal/logger"
	"github.com/hitoshi/chatgate/internal/metrics"
	"github.com/hitoshi/chatgate/internal/middleware"
	"github.com/hitoshi/chatgate/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// ログレベルは設定読み込み前に必要なためLOG_LEVELを直接参照する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// signalContext はSIGINT/SIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newSessionManager は設定からSessionManagerを組み立てる。
func newSessionManager(cfg *config.Config, st *stores, collector metrics.MetricsCollector) *auth.SessionManager {
	return auth.NewSessionManager(st.sessions, st.users, auth.SessionConfig{
		MaxAge:       cfg.SessionMaxAge,
		Secret:       cfg.SessionSecret,
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	}, collector)
}

// application はserveモードで組み立てた依存関係。
type application struct {
	router      http.Handler
	sessions    *auth.SessionManager
	rateLimiter *middleware.RateLimiter
}

// buildApplication はストアから認証サービスとルーターまでをワイヤリングする。
func buildApplication(cfg *config.Config, st *stores) *application {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	provider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   &http.Client{Timeout: cfg.OAuthHTTPTimeout},
	})
	sessions := newSessionManager(cfg, st, collector)
	authService := auth.NewService(provider, st.users, sessions, collector)
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitAuth))

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HSTS:              cfg.CookieSecure,
		Collector:         collector,

		AuthService: authService,
		Cookies:     sessions,
		AuthConfig:  handler.AuthHandlerConfig{CookieSecure: cfg.CookieSecure},

		HealthCheck:    st.ping,
		MetricsHandler: metrics.Handler(reg),
	}

	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		deps.StaticFiles = os.DirFS(cfg.StaticDir)
	} else {
		slog.Warn("static directory not found; frontend will not be served",
			slog.String("static_dir", cfg.StaticDir),
		)
	}

	return &application{
		router:      handler.NewRouter(deps),
		sessions:    sessions,
		rateLimiter: rateLimiter,
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	a := buildApplication(cfg, st)
	defer a.rateLimiter.Stop()

	// メモリセッションストアでは別プロセスのworkerから削除できないため、serveでも実行する
	cleanupJob := cleanup.NewSessionCleanupJob(a.sessions, slog.Default())
	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除をシグナル受信まで続ける。
func runWorker(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.backend == database.BackendMemory && cfg.RedisURL == "" {
		slog.Warn("worker has no shared session store; nothing to clean up across processes")
	}

	sessions := newSessionManager(cfg, st, metrics.NopCollector{})
	job := cleanup.NewSessionCleanupJob(sessions, slog.Default())

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はPostgreSQLのマイグレーションを実行する。
// 引数に"down"を渡すと直近1件を巻き戻す。
func runMigrate(cfg *config.Config, args []string) error {
	backend, err := database.ParseBackend(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if backend != database.BackendPostgres {
		return fmt.Errorf("migrate supports postgres only, got %q", backend)
	}

	if len(args) > 0 && args[0] == "down" {
		slog.Info("rolling back last database migration",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL, 1); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migration rolled back")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckPort はConfigを読まずにポートを決める。優先順はSERVER_PORT、PORT、8080。
func healthcheckPort() string {
	for _, key := range []string{"SERVER_PORT", "PORT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "8080"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
