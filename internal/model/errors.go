// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 認証コアのエラー分類。errors.Isで判定する。
var (
	// ErrConfigMissing は必須の設定値が未設定であることを示す。起動時に致命的。
	ErrConfigMissing = errors.New("required configuration is missing")
	// ErrStoreUnavailable はストアに接続できないことを示す。起動時に致命的。
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAuthFailure はIdPとのハンドシェイク失敗を示す。未ログイン扱いで回復する。
	ErrAuthFailure = errors.New("authentication failed")
	// ErrDuplicateKey は external_id の一意制約違反を示す。
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrSessionInvalid はセッションを解決できないことを示す。未ログイン扱いで回復する。
	ErrSessionInvalid = errors.New("session invalid")
	// ErrNotFound はストアに該当レコードが存在しないことを示す。
	ErrNotFound = errors.New("not found")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeServiceDegraded = "SERVICE_UNAVAILABLE"
)

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewServiceUnavailableError はストア疎通不可エラーを生成する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeServiceDegraded,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
