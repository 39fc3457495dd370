package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/chatgate/internal/model"
	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteUserSchema はSQLiteストアのスキーマ。Open時に毎回適用する（冪等）。
const sqliteUserSchema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);`

// SQLiteUserRepo はSQLiteを使用したユーザーリポジトリ。
// 単一ファイルでの開発・デモ運用を想定する。IDはULIDで採番する。
type SQLiteUserRepo struct {
	db *sql.DB
}

// NewSQLiteUserRepo はスキーマを適用したうえでSQLiteUserRepoを生成する。
func NewSQLiteUserRepo(ctx context.Context, db *sql.DB) (*SQLiteUserRepo, error) {
	if _, err := db.ExecContext(ctx, sqliteUserSchema); err != nil {
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return &SQLiteUserRepo{db: db}, nil
}

// FindByID は指定IDのユーザーを取得する。
func (r *SQLiteUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, external_id, display_name, email, avatar_url, created_at FROM users WHERE id = ?`, id)
}

// FindByExternalID はexternal_idでユーザーを取得する。
func (r *SQLiteUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, external_id, display_name, email, avatar_url, created_at FROM users WHERE external_id = ?`, externalID)
}

func (r *SQLiteUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	user := &model.User{}
	var createdAt int64
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.ExternalID, &user.DisplayName, &user.Email, &user.AvatarURL, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return user, nil
}

// Insert はユーザーを作成する。UNIQUE制約違反はmodel.ErrDuplicateKeyに変換する。
func (r *SQLiteUserRepo) Insert(ctx context.Context, profile *model.Profile) (*model.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := &model.User{
		ID:          ulid.Make().String(),
		ExternalID:  profile.ExternalID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
		CreatedAt:   now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, display_name, email, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.ExternalID, user.DisplayName, user.Email, user.AvatarURL, now.UnixMilli(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, fmt.Errorf("external_id %q: %w", profile.ExternalID, model.ErrDuplicateKey)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// compile-time interface check
var _ UserRepository = (*SQLiteUserRepo)(nil)
