// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/chatgate/internal/metrics"
	"github.com/hitoshi/chatgate/internal/model"
	"github.com/hitoshi/chatgate/internal/repository"
)

// OAuthProvider はIdPとのハンドシェイクを抽象化するインターフェース。
// 実装はストアにアクセスしない。
type OAuthProvider interface {
	// BeginAuth はstateを埋め込んだ同意画面URLを返す。
	BeginAuth(state string) string
	// CompleteAuth は認可コードを正規化済みプロフィールに交換する。
	// 失敗時はmodel.ErrAuthFailureをラップしたエラーを返す。
	CompleteAuth(ctx context.Context, code string) (*model.Profile, error)
}

// Service はログイン開始からステータス照会、ログアウトまでを調停する。
type Service struct {
	provider  OAuthProvider
	users     repository.UserRepository
	sessions  *SessionManager
	collector metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	provider OAuthProvider,
	users repository.UserRepository,
	sessions *SessionManager,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		provider:  provider,
		users:     users,
		sessions:  sessions,
		collector: collector,
	}
}

// StartLogin はIdPの認可URLを返す。
func (s *Service) StartLogin(state string) string {
	return s.provider.BeginAuth(state)
}

// CompleteLogin は認可コードからユーザーを特定（未登録なら作成）し、セッションを発行する。
// 既存ユーザーのプロフィールは更新しない。
func (s *Service) CompleteLogin(ctx context.Context, code string) (*model.Session, error) {
	// 1. 認可コードをプロフィールに交換
	profile, err := s.provider.CompleteAuth(ctx, code)
	if err != nil {
		s.collector.RecordLoginFailure(metrics.ReasonProvider)
		return nil, err
	}

	// 2. 既存ユーザーを検索し、無ければ作成
	user, created, err := s.findOrCreateUser(ctx, profile)
	if err != nil {
		s.collector.RecordLoginFailure(metrics.ReasonStore)
		return nil, err
	}

	// 3. セッションを発行
	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		s.collector.RecordLoginFailure(metrics.ReasonSession)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.collector.RecordLoginSuccess(created)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("new_user", created),
	)

	return session, nil
}

// findOrCreateUser はexternal_idでユーザーを取得し、無ければ作成する。
// 同時ログインで一意制約違反になった場合は勝った側のレコードを再取得する。
func (s *Service) findOrCreateUser(ctx context.Context, profile *model.Profile) (*model.User, bool, error) {
	user, err := s.users.FindByExternalID(ctx, profile.ExternalID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}

	user, err = s.users.Insert(ctx, profile)
	if err == nil {
		slog.Info("new user created", slog.String("user_id", user.ID))
		return user, true, nil
	}
	if !errors.Is(err, model.ErrDuplicateKey) {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	s.collector.RecordDuplicateKeyRecovered()
	user, err = s.users.FindByExternalID(ctx, profile.ExternalID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to refetch user after duplicate key: %w", err)
	}
	return user, false, nil
}

// Status はセッションIDからログイン状態を返す。解決できないセッションは匿名扱い。
func (s *Service) Status(ctx context.Context, sessionID string) model.Status {
	if sessionID == "" {
		return model.AnonymousStatus()
	}
	user, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return model.AnonymousStatus()
	}
	return model.NewStatus(user)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return err
	}
	s.collector.RecordLogout()
	return nil
}
