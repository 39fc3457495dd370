package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/chatgate/internal/model"
	"github.com/lib/pq"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// IDはデータベース側のデフォルト値（gen_random_uuid）で採番する。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserColumns = `SELECT id, external_id, display_name, email, avatar_url, created_at FROM users`

// FindByID は指定IDのユーザーを取得する。見つからない場合はmodel.ErrNotFoundを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE id = $1`, id)
}

// FindByExternalID はexternal_idでユーザーを取得する。見つからない場合はmodel.ErrNotFoundを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE external_id = $1`, externalID)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.ExternalID, &user.DisplayName, &user.Email, &user.AvatarURL, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// Insert はユーザーを作成する。
// external_idのユニークインデックスに違反した場合はmodel.ErrDuplicateKeyを返す。
func (r *PostgresUserRepo) Insert(ctx context.Context, profile *model.Profile) (*model.User, error) {
	user := &model.User{
		ExternalID:  profile.ExternalID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (external_id, display_name, email, avatar_url)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		profile.ExternalID, profile.DisplayName, profile.Email, profile.AvatarURL,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("external_id %q: %w", profile.ExternalID, model.ErrDuplicateKey)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
