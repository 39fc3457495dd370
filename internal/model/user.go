// Package model はドメインモデルを定義する。
package model

import "time"

// User は外部IdPでログインしたユーザーを表す。
// プロフィール項目は初回ログイン時に一度だけ書き込まれ、以降のログインでは更新しない。
type User struct {
	ID          string // ストアが採番する不変のID
	ExternalID  string // IdPのsubject。全レコードで一意
	DisplayName string
	Email       string
	AvatarURL   string
	CreatedAt   time.Time
}

// Profile はIdPから取得し正規化したユーザー情報を表す。
type Profile struct {
	ExternalID  string
	DisplayName string
	Email       string
	AvatarURL   string
}

// Session はブラウザCookieに紐づくサーバー側セッションを表す。
// UserIDは弱参照であり、ユーザーの存在は解決時に確認する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はnow時点でセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StatusUser はログイン状態レスポンスに含める最小限のプロフィール。
// 内部IDと外部IDは含めない。
type StatusUser struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Image       string `json:"image"`
}

// Status は GET /auth/status のレスポンスボディ。
type Status struct {
	LoggedIn bool        `json:"loggedIn"`
	User     *StatusUser `json:"user,omitempty"`
}

// AnonymousStatus は未ログイン状態を返す。
func AnonymousStatus() Status {
	return Status{LoggedIn: false}
}

// NewStatus はユーザーからログイン済み状態を生成する。userがnilの場合は未ログイン状態を返す。
func NewStatus(user *User) Status {
	if user == nil {
		return AnonymousStatus()
	}
	return Status{
		LoggedIn: true,
		User: &StatusUser{
			DisplayName: user.DisplayName,
			Email:       user.Email,
			Image:       user.AvatarURL,
		},
	}
}
