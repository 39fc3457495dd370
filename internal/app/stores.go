package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/chatgate/internal/config"
	"github.com/hitoshi/chatgate/internal/database"
	"github.com/hitoshi/chatgate/internal/model"
	"github.com/hitoshi/chatgate/internal/repository"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// stores はDATABASE_URL・REDIS_URLから構築したユーザーストアとセッションストア。
type stores struct {
	backend  database.Backend
	users    repository.UserRepository
	sessions repository.SessionRepository

	// pingers はヘルスチェックで疎通を確認する対象。
	pingers []func(ctx context.Context) error
	closers []func() error
}

// ping は全ストアの疎通を確認する。
func (s *stores) ping(ctx context.Context) error {
	for _, p := range s.pingers {
		if err := p(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close は開いた接続を逆順に閉じる。
func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStores はバックエンド種別に応じてストアを開く。
// 接続できない場合はmodel.ErrStoreUnavailableでラップしたエラーを返す。
//
// セッションストアの選択:
//   - REDIS_URLが設定されていればRedis
//   - ユーザーストアがPostgreSQLならPostgreSQL
//   - それ以外はプロセス内メモリ
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	backend, err := database.ParseBackend(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	s := &stores{backend: backend}
	if err := s.openUsers(ctx, cfg.DatabaseURL); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	if err := s.openSessions(ctx, cfg.RedisURL); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	slog.Info("stores opened",
		slog.String("backend", string(backend)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("redis_sessions", cfg.RedisURL != ""),
	)
	return s, nil
}

func (s *stores) openUsers(ctx context.Context, databaseURL string) error {
	switch s.backend {
	case database.BackendPostgres:
		db, err := database.Open(databaseURL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.pingers = append(s.pingers, db.PingContext)
		s.users = repository.NewPostgresUserRepo(db)
		s.sessions = repository.NewPostgresSessionRepo(db)

	case database.BackendSQLite:
		path, err := database.SQLitePath(databaseURL)
		if err != nil {
			return err
		}
		db, err := database.OpenSQLite(ctx, path)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, db.Close)
		s.pingers = append(s.pingers, db.PingContext)
		users, err := repository.NewSQLiteUserRepo(ctx, db)
		if err != nil {
			return err
		}
		s.users = users

	case database.BackendMongo:
		client, err := database.OpenMongo(ctx, databaseURL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error {
			return client.Disconnect(context.Background())
		})
		s.pingers = append(s.pingers, func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		users := repository.NewMongoUserRepo(client.Database(database.MongoDatabaseName(databaseURL)))
		if err := users.EnsureIndexes(ctx); err != nil {
			return err
		}
		s.users = users

	case database.BackendMemory:
		s.users = repository.NewMemoryUserRepo()

	default:
		return fmt.Errorf("unsupported backend %q", s.backend)
	}
	return nil
}

func (s *stores) openSessions(ctx context.Context, redisURL string) error {
	if redisURL != "" {
		client, err := database.OpenRedis(ctx, redisURL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, client.Close)
		s.pingers = append(s.pingers, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		s.sessions = repository.NewRedisSessionRepo(client)
		return nil
	}

	if s.sessions == nil {
		slog.Warn("using in-memory session store; sessions are lost on restart")
		s.sessions = repository.NewMemorySessionRepo()
	}
	return nil
}
