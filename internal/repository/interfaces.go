// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/chatgate/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// 更新操作は持たない（プロフィールは初回作成時のみ書き込む）。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はmodel.ErrNotFoundを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalID はIdPのsubjectでユーザーを取得する。
	// 見つからない場合はmodel.ErrNotFoundを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// Insert はプロフィールからユーザーを作成する。IDと作成日時はストアが割り当てる。
	// external_idが既に存在する場合はmodel.ErrDuplicateKeyを返す。
	// 一意性は同時実行されるInsert間でもストア側で原子的に保証する。
	Insert(ctx context.Context, profile *model.Profile) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。存在しない・期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
